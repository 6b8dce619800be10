// Package ollama adapts a local ollama server to the inference.Engine
// contract.
package ollama

import (
	"context"
	"sync"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/inference"
)

type Engine struct {
	client  *api.Client
	memory  inference.MemoryChecker
	options map[string]interface{}

	mu     sync.Mutex
	model  inference.ModelDescriptor
	loaded bool
}

type Option func(*Engine)

func WithClient(client *api.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

func WithMemoryChecker(checker inference.MemoryChecker) Option {
	return func(e *Engine) {
		e.memory = checker
	}
}

// WithOptions passes sampling options (temperature, num_predict, ...)
// through to the ollama chat request.
func WithOptions(options map[string]interface{}) Option {
	return func(e *Engine) {
		e.options = options
	}
}

func New(model inference.ModelDescriptor, options ...Option) (*Engine, error) {
	ret := &Engine{
		model:  model,
		memory: inference.NewMeminfoChecker(),
		loaded: true,
	}

	for _, option := range options {
		option(ret)
	}

	if ret.client == nil {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.Wrap(err, "could not create ollama client")
		}
		ret.client = client
	}

	return ret, nil
}

func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) Model() *inference.ModelDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	ret := e.model
	ret.Loaded = true
	return &ret
}

func (e *Engine) ChatStream(
	ctx context.Context,
	messages []*conversation.Message,
	onChunk inference.StreamHandler,
) (string, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return "", errors.New("no model loaded")
	}
	model := e.model.ID
	e.mu.Unlock()

	ollamaMessages := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Text,
		})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options:  e.options,
	}

	completion := ""
	err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Done {
			return nil
		}

		completion += resp.Message.Content
		if onChunk != nil {
			return onChunk(resp.Message.Content)
		}
		return nil
	})

	if err != nil {
		log.Debug().Err(err).Str("model", model).Msg("ollama chat stream failed")
		return completion, err
	}

	return completion, nil
}

func (e *Engine) CheckMemory() inference.MemoryStatus {
	return e.memory.CheckMemory()
}

func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	return nil
}

var _ inference.Engine = (*Engine)(nil)
