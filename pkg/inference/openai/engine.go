// Package openai adapts any OpenAI-compatible chat completion endpoint
// (llama.cpp server, vllm, the hosted API) to the inference.Engine contract.
package openai

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/inference"
)

type Engine struct {
	client    *go_openai.Client
	memory    inference.MemoryChecker
	maxTokens int

	mu     sync.Mutex
	model  inference.ModelDescriptor
	loaded bool
}

type Option func(*Engine)

func WithClient(client *go_openai.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithBaseURL points the client at a local OpenAI-compatible server.
func WithBaseURL(apiKey string, baseURL string) Option {
	return func(e *Engine) {
		config := go_openai.DefaultConfig(apiKey)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		e.client = go_openai.NewClientWithConfig(config)
	}
}

func WithMemoryChecker(checker inference.MemoryChecker) Option {
	return func(e *Engine) {
		e.memory = checker
	}
}

func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		e.maxTokens = n
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
		return nil, errors.New("no client configured, use WithClient or WithBaseURL")
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

	msgs_ := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		msgs_ = append(msgs_, go_openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text,
		})
	}

	req := go_openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs_,
		MaxTokens: e.maxTokens,
		Stream:    true,
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	completion := ""
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return completion, nil
		}
		if err != nil {
			return completion, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		completion += delta
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return completion, err
			}
		}
	}
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
