package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/config"
)

// Callback kinds.
const (
	CallbackAnalysis = "analysis"
	CallbackChatbot  = "chatbot"
)

// ReceivedCallback is the last payload posted by the agent for one kind.
type ReceivedCallback struct {
	ReceivedAt time.Time       `json:"receivedAt"`
	Body       json.RawMessage `json:"body"`
}

// ProviderInfo describes the active analysis provider.
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Callbacks struct {
		AnalysisCallbackConfigured bool `json:"analysisCallbackConfigured"`
		ChatbotCallbackConfigured  bool `json:"chatbotCallbackConfigured"`
	} `json:"callbacks"`
}

// AIService keeps the agent callback mailbox. Only the latest payload per
// kind is retained and nothing is persisted.
type AIService struct {
	Config config.AIConfig
	Now    func() time.Time

	mu   sync.RWMutex
	last map[string]*ReceivedCallback
}

// Provider reports the configured provider and which callbacks are set.
func (s *AIService) Provider() ProviderInfo {
	var p ProviderInfo
	p.Provider = s.Config.Provider
	if p.Provider == "" {
		p.Provider = analysis.ProviderOpenAI
	}
	p.Callbacks.AnalysisCallbackConfigured = s.Config.AnalysisCallbackURL != ""
	p.Callbacks.ChatbotCallbackConfigured = s.Config.ChatbotCallbackURL != ""
	return p
}

// Receive stores raw as the latest callback of kind and reports whether the
// payload has the expected shape. Malformed payloads are stored too.
func (s *AIService) Receive(kind string, raw []byte) bool {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	body := json.RawMessage(append([]byte(nil), raw...))
	if !json.Valid(body) {
		body = nil
	}
	s.mu.Lock()
	if s.last == nil {
		s.last = make(map[string]*ReceivedCallback, 2)
	}
	s.last[kind] = &ReceivedCallback{ReceivedAt: now().UTC(), Body: body}
	s.mu.Unlock()

	switch kind {
	case CallbackAnalysis:
		return analysis.ValidAnalysisCallback(raw)
	case CallbackChatbot:
		_, ok := analysis.ChatCallbackText(raw)
		return ok
	}
	return false
}

// Last returns the latest callback of kind, or nil.
func (s *AIService) Last(kind string) *ReceivedCallback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cb, ok := s.last[kind]; ok {
		c := *cb
		return &c
	}
	return nil
}
