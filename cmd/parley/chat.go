package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/parley/pkg/generation"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured model from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			go func() {
				if err := app.router.Run(ctx); err != nil {
					log.Warn().Err(err).Msg("event router stopped")
				}
			}()
			defer func() {
				_ = app.router.Close()
			}()
			<-app.router.Running()

			conv, err := app.service.StartNewConversation("")
			if err != nil {
				return err
			}
			fmt.Printf("started conversation %s with %s\n", conv.ID, conv.ModelID)
			fmt.Println("type /new, /title <t>, /list, or /quit")

			return repl(ctx, app)
		},
	}
}

func repl(ctx context.Context, app *app) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runReplCommand(app, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := sendAndStream(ctx, app, line); err != nil {
			return err
		}
	}
}

func runReplCommand(app *app, line string) (quit bool, err error) {
	command, rest, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		conv, err := app.service.StartNewConversation(rest)
		if err != nil {
			return false, err
		}
		fmt.Printf("started conversation %s\n", conv.ID)
	case "/title":
		conv := app.service.CurrentConversation()
		if conv == nil {
			return false, errors.New("no conversation")
		}
		app.service.RenameConversation(conv, rest)
		fmt.Printf("renamed to %q\n", conv.Title())
	case "/list":
		for _, conv := range app.service.ListConversations() {
			marker := " "
			if current := app.service.CurrentConversation(); current != nil && current.ID == conv.ID {
				marker = "*"
			}
			fmt.Printf("%s %s  %-40q  %d messages\n", marker, conv.ID, conv.Title(), conv.MessageCount())
		}
	case "/cancel":
		return false, app.service.CancelGeneration()
	default:
		return false, errors.Errorf("unknown command %q", command)
	}
	return false, nil
}

func sendAndStream(ctx context.Context, app *app, text string) error {
	// a Ctrl-C during generation aborts only this message
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_, err := app.service.SendMessage(sendCtx, text, func(chunk string) error {
		fmt.Print(chunk)
		return nil
	})
	fmt.Println()
	if err != nil {
		if errors.Is(err, generation.ErrCancelled) {
			fmt.Println("(cancelled)")
			return nil
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return nil
	}

	if stats := app.service.LastStats(); stats != nil {
		log.Debug().Object("stats", stats).Msg("generation finished")
	}
	return nil
}
