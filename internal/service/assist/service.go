// Package assist answers first-aid, symptom and report questions through a
// language model, with local canned answers whenever the model is missing
// or failing.
package assist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediconnect-backend/pkg/constants"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/metrics"
	"mediconnect-backend/pkg/resilience"
	"mediconnect-backend/pkg/sanitize"
)

// Category selects the prompt and the fallback table
type Category string

const (
	CategoryFirstAid Category = "first-aid"
	CategorySymptoms Category = "symptoms"
	CategoryReport   Category = "report"
	CategoryGeneral  Category = "general"
)

// ParseCategory accepts the four known categories
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryFirstAid, CategorySymptoms, CategoryReport, CategoryGeneral:
		return c, nil
	}
	return "", apperrors.ValidationError(fmt.Sprintf("Unknown assistance category: %s", s))
}

// MaxTextLength caps one question
const MaxTextLength = 4000

// Request is one assistance question
type Request struct {
	Category Category
	Text     string
}

// Response is the answer. Fallback is set when it came from the local
// tables instead of the model.
type Response struct {
	Category   Category `json:"category"`
	Response   string   `json:"response"`
	Disclaimer string   `json:"disclaimer,omitempty"`
	Fallback   bool     `json:"fallback"`
}

var systemPrompts = map[Category]string{
	CategoryFirstAid: "You are a medical first aid assistant that provides clear, accurate emergency guidance. Always emphasize seeking professional medical help for serious situations.",
	CategorySymptoms: "You are a medical assistant providing general health information. You're not diagnosing patients, and you should always recommend consulting a doctor for proper diagnosis.",
	CategoryReport:   "You are a medical assistant that explains medical reports in simple terms. Break down medical terminology into everyday language.",
	CategoryGeneral:  "You are a healthcare assistant providing general information. Always recommend consulting healthcare professionals for medical advice.",
}

func userPrompt(category Category, text string) string {
	switch category {
	case CategoryFirstAid:
		return fmt.Sprintf("I need first aid guidance for this situation: %s. Please provide clear, step-by-step instructions.", text)
	case CategorySymptoms:
		return fmt.Sprintf("I'm experiencing these symptoms: %s. What might they indicate? Please provide possible conditions, when I should see a doctor, and any home care recommendations.", text)
	case CategoryReport:
		return fmt.Sprintf("Please explain these medical terms or report findings in simple language: %s. Break down any medical jargon.", text)
	}
	return text
}

// Service answers assistance requests
type Service struct {
	llm     ChatClient
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewService creates the assistant. llm may be nil, in which case every
// answer is a canned one. Repeated model failures open a breaker so later
// questions are answered locally without waiting on the provider.
func NewService(llm ChatClient, m *metrics.Metrics, timeout time.Duration) *Service {
	breaker := resilience.NewCircuitBreaker("llm", constants.LLMBreakerThreshold, constants.LLMBreakerCooldown,
		func(name string, state resilience.CircuitBreakerState) {
			m.SetCircuitBreakerState(name, state.Value())
		})
	return &Service{llm: llm, breaker: breaker, metrics: m, timeout: timeout}
}

// Ask answers req. Model failures are logged and answered locally, so the
// only errors are invalid requests.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	text := sanitize.Text(req.Text)
	if text == "" {
		return nil, apperrors.MissingFieldError("text")
	}
	if len(text) > MaxTextLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Question exceeds %d characters", MaxTextLength))
	}
	category := req.Category
	if category == "" {
		category = CategoryGeneral
	}
	if _, ok := systemPrompts[category]; !ok {
		return nil, apperrors.ValidationError(fmt.Sprintf("Unknown assistance category: %s", category))
	}

	start := time.Now()
	resp := s.askModel(ctx, category, text)
	if resp == nil {
		answer, disclaimer := fallbackFor(category, text)
		resp = &Response{Category: category, Response: answer, Disclaimer: disclaimer, Fallback: true}
	}
	s.metrics.RecordAssist(string(category), resp.Fallback, time.Since(start))
	return resp, nil
}

func (s *Service) askModel(ctx context.Context, category Category, text string) *Response {
	if s.llm == nil {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var answer string
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		answer, err = s.llm.Chat(ctx, []Message{
			{Role: "system", Content: systemPrompts[category]},
			{Role: "user", Content: userPrompt(category, text)},
		})
		if err == nil && strings.TrimSpace(answer) == "" {
			err = fmt.Errorf("empty completion")
		}
		return err
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Language model unavailable, using canned answer",
			zap.String("category", string(category)),
			zap.Error(err))
		return nil
	}
	return &Response{Category: category, Response: answer}
}

// Conversation is one user's assistance thread. Its mode is whatever was
// last selected, never guessed from earlier messages.
type Conversation struct {
	service *Service

	mu      sync.Mutex
	mode    Category
	history []Turn
}

// Turn is one exchange in a Conversation
type Turn struct {
	Mode     Category
	Question string
	Answer   *Response
	At       time.Time
}

// NewConversation starts a thread in general mode
func (s *Service) NewConversation() *Conversation {
	return &Conversation{service: s, mode: CategoryGeneral}
}

// SelectMode switches the category used for the following questions
func (c *Conversation) SelectMode(mode Category) error {
	if _, ok := systemPrompts[mode]; !ok {
		return apperrors.ValidationError(fmt.Sprintf("Unknown assistance category: %s", mode))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

// Mode is the currently selected category
func (c *Conversation) Mode() Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Send asks text in the current mode and records the exchange
func (c *Conversation) Send(ctx context.Context, text string) (*Response, error) {
	mode := c.Mode()
	resp, err := c.service.Ask(ctx, Request{Category: mode, Text: text})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.history = append(c.history, Turn{Mode: mode, Question: text, Answer: resp, At: time.Now()})
	c.mu.Unlock()
	return resp, nil
}

// History returns a copy of the exchanges so far
func (c *Conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}
