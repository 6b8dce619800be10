package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/generation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the conversation service over a localhost HTTP surface.
// It only consumes the facade's public operations; all conversation and
// generation semantics stay in the core packages.
type Server struct {
	service *chat.Service
	router  chi.Router
}

type ServerOption func(*Server)

func NewServer(service *chat.Service, options ...ServerOption) *Server {
	ret := &Server{
		service: service,
	}
	for _, option := range options {
		option(ret)
	}
	ret.router = ret.buildRouter()
	return ret
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", addr).Msg("http server listening")
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
		r.Post("/chat", s.handleChat)
		r.Post("/cancel", s.handleCancel)
		r.Get("/status", s.handleStatus)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := s.service.StartNewConversation(req.Title)
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

type conversationSummary struct {
	ID           conversation.ConversationID `json:"id"`
	Title        string                      `json:"title"`
	ModelID      string                      `json:"modelID"`
	Created      time.Time                   `json:"created"`
	LastUpdated  time.Time                   `json:"lastUpdated"`
	MessageCount int                         `json:"messageCount"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations := s.service.ListConversations()
	summaries := make([]conversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, conversationSummary{
			ID:           conv.ID,
			Title:        conv.Title(),
			ModelID:      conv.ModelID,
			Created:      conv.Created,
			LastUpdated:  conv.LastUpdated(),
			MessageCount: conv.MessageCount(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

func (s *Server) conversationFromPath(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	id, err := conversation.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation id")
		return nil, false
	}
	conv, ok := s.service.GetConversation(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return conv, true
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFromPath(w, r)
	if !ok {
		return
	}
	s.service.DeleteConversation(conv)
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type streamLine struct {
	Type    string                `json:"type"`
	Text    string                `json:"text,omitempty"`
	Error   string                `json:"error,omitempty"`
	Message *conversation.Message `json:"message,omitempty"`
	Stats   *generation.Stats     `json:"stats,omitempty"`
}

// handleChat streams the assistant's reply as NDJSON: one "token" line per
// chunk, then a terminal "done" line carrying the finalized message, or an
// "error" line if generation failed after streaming began.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ConversationID != "" {
		id, err := conversation.ParseConversationID(req.ConversationID)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid conversation id")
			return
		}
		conv, ok := s.service.GetConversation(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.service.LoadConversation(conv)
	}

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	encoder := json.NewEncoder(w)
	streamed := false
	writeLine := func(line streamLine) {
		if !streamed {
			w.Header().Set("Content-Type", "application/x-ndjson")
			streamed = true
		}
		_ = encoder.Encode(line)
		if flush != nil {
			flush()
		}
	}

	msg, err := s.service.SendMessage(r.Context(), req.Message, func(chunk string) error {
		tokensStreamedTotal.Inc()
		writeLine(streamLine{Type: "token", Text: chunk})
		return nil
	})
	if err != nil {
		// client disconnects cancel the request context; the coordinator
		// already rolled the pending message back
		if r.Context().Err() != nil {
			return
		}
		if streamed {
			writeLine(streamLine{Type: "error", Error: err.Error()})
			return
		}
		writeJSONError(w, statusForError(err), err.Error())
		return
	}

	writeLine(streamLine{Type: "done", Message: msg, Stats: s.service.LastStats()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelGeneration(); err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"cancelled": true})
}

type statusResponse struct {
	Ready             bool    `json:"ready"`
	Generating        bool    `json:"generating"`
	Model             string  `json:"model,omitempty"`
	ContextTokens     int     `json:"contextTokens,omitempty"`
	Memory            string  `json:"memory"`
	ConversationCount int     `json:"conversationCount"`
	LastTokensPerSec  float64 `json:"lastTokensPerSecond,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Ready:             s.service.IsReady(),
		Generating:        s.service.IsGenerating(),
		Memory:            string(s.service.MemoryStatus()),
		ConversationCount: len(s.service.ListConversations()),
	}
	if model := s.service.CurrentModel(); model != nil {
		resp.Model = model.ID
		resp.ContextTokens = model.ContextTokens
	}
	if stats := s.service.LastStats(); stats != nil {
		resp.LastTokensPerSec = stats.TokensPerSecond
	}
	writeJSON(w, http.StatusOK, resp)
}
