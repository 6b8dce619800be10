package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/httpapi"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over localhost HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			app, err := buildApp()
			if err != nil {
				return err
			}
			server := httpapi.NewServer(app.service)

			app.router.AddHandler("chat-log", "chat", func(e events.Event) error {
				log.Debug().
					Str("type", string(e.Type())).
					Object("metadata", e.Metadata()).
					Msg("chat event")
				return nil
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				defer func() {
					_ = app.router.Close()
				}()
				return app.router.Run(ctx)
			})
			eg.Go(func() error {
				<-app.router.Running()
				err := server.ListenAndServe(ctx, addr)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})

			return eg.Wait()
		},
	}
	cmd.Flags().String("addr", "localhost:8700", "Listen address")
	return cmd
}
