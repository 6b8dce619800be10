package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/contextwindow"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/inference"
	"github.com/go-go-golems/parley/pkg/inference/ollama"
	"github.com/go-go-golems/parley/pkg/inference/openai"
)

// app wires the engine, store, coordinator and service together from viper
// settings. Constructed once per command invocation; every component is a
// plain value passed by reference, no process-level singletons.
type app struct {
	engine      inference.Engine
	store       *conversation.Store
	coordinator *generation.Coordinator
	service     *chat.Service
	router      *events.EventRouter
}

func buildApp() (*app, error) {
	model, err := resolveModel()
	if err != nil {
		return nil, err
	}

	engine, err := buildEngine(model)
	if err != nil {
		return nil, err
	}

	store, err := buildStore()
	if err != nil {
		return nil, err
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return nil, err
	}

	// the publisher manager stamps sequence numbers so subscribers on the
	// router can re-establish stream order
	publisherManager := events.NewPublisherManager()
	publisherManager.SubscribePublisher("chat", router.Publisher)

	coordinatorOptions := []generation.CoordinatorOption{
		generation.WithEventSinks(publisherManager),
	}
	if prompt := viper.GetString("system-prompt"); prompt != "" {
		coordinatorOptions = append(coordinatorOptions, generation.WithSystemPrompt(prompt))
	}
	if maxTokens := viper.GetInt("max-tokens"); maxTokens > 0 {
		coordinatorOptions = append(coordinatorOptions, generation.WithMaxTokens(maxTokens))
	}
	coordinator := generation.NewCoordinator(engine, store, coordinatorOptions...)

	serviceOptions, err := buildServiceOptions()
	if err != nil {
		return nil, err
	}

	return &app{
		engine:      engine,
		store:       store,
		coordinator: coordinator,
		service:     chat.NewService(engine, store, coordinator, serviceOptions...),
		router:      router,
	}, nil
}

// buildServiceOptions swaps the character heuristic for a real tokenizer
// codec when --tokenizer names an encoding.
func buildServiceOptions() ([]chat.ServiceOption, error) {
	encoding := viper.GetString("tokenizer")
	if encoding == "" {
		return nil, nil
	}

	counter, err := contextwindow.NewTiktokenCounter(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown tokenizer encoding %q", encoding)
	}
	window := contextwindow.NewManager(contextwindow.WithTokenCounter(counter))
	return []chat.ServiceOption{chat.WithWindowManager(window)}, nil
}

func resolveModel() (inference.ModelDescriptor, error) {
	id := viper.GetString("model")
	if path := viper.GetString("models-file"); path != "" {
		catalog, err := inference.LoadCatalog(path)
		if err != nil {
			return inference.ModelDescriptor{}, errors.Wrap(err, "could not load model catalog")
		}
		return catalog.Lookup(id), nil
	}
	return inference.ModelDescriptor{
		ID:            id,
		Name:          id,
		ContextTokens: inference.DefaultContextTokens,
	}, nil
}

func buildEngine(model inference.ModelDescriptor) (inference.Engine, error) {
	checker := inference.NewMeminfoChecker()
	backend := viper.GetString("backend")
	switch backend {
	case "ollama":
		return ollama.New(model, ollama.WithMemoryChecker(checker))
	case "openai":
		options := []openai.Option{
			openai.WithMemoryChecker(checker),
			openai.WithBaseURL(viper.GetString("openai-api-key"), viper.GetString("openai-base-url")),
		}
		return openai.New(model, options...)
	default:
		return nil, errors.Errorf("unknown backend %q", backend)
	}
}

func buildStore() (*conversation.Store, error) {
	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(home, ".parley", "conversations")
	}

	persister, err := conversation.NewFilePersister(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "could not open conversation directory")
	}

	store := conversation.NewStore(conversation.WithPersister(persister))
	conversations, err := persister.Load()
	if err != nil {
		log.Warn().Err(err).Str("dir", dataDir).Msg("could not load conversations")
		return store, nil
	}
	for _, conv := range conversations {
		store.Add(conv)
	}
	log.Debug().Int("count", len(conversations)).Str("dir", dataDir).Msg("loaded conversations")

	return store, nil
}
