package chat

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"taboon/internal/llm"
	"taboon/internal/models"
	"taboon/internal/monitoring"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

// HistoryLimit is how many previous turns are sent with each message
const HistoryLimit = 10

// ProfileReader looks up what is remembered about a fingerprint
type ProfileReader interface {
	Lookup(ctx context.Context, fingerprint string) (*models.CustomerProfile, bool, error)
}

// Request is one customer chat turn
type Request struct {
	Message      string               `json:"message"`
	History      []llm.Message        `json:"history"`
	Fingerprint  string               `json:"fingerprint"`
	CustomerData *models.ProfilePatch `json:"customerData"`
}

// Response is the assistant's answer, with the order id when one was placed
type Response struct {
	Reply   string `json:"reply"`
	OrderID *int64 `json:"orderId"`
}

// Assistant runs a chat turn: it builds the prompt, calls the provider and
// hands the reply to the extractor
type Assistant struct {
	provider  llm.Provider
	extractor *Extractor
	customers ProfileReader
	prompt    string
	timeout   time.Duration
	metrics   *monitoring.Metrics
	logger    *slog.Logger
}

// AssistantOption configures an Assistant
type AssistantOption func(*Assistant)

// WithSystemPrompt replaces the embedded restaurant prompt
func WithSystemPrompt(prompt string) AssistantOption {
	return func(a *Assistant) {
		if strings.TrimSpace(prompt) != "" {
			a.prompt = prompt
		}
	}
}

// WithTimeout bounds each provider call
func WithTimeout(d time.Duration) AssistantOption {
	return func(a *Assistant) { a.timeout = d }
}

// WithAssistantMetrics records chat outcomes and provider latency
func WithAssistantMetrics(m *monitoring.Metrics) AssistantOption {
	return func(a *Assistant) { a.metrics = m }
}

// NewAssistant creates an assistant. customers may be nil.
func NewAssistant(provider llm.Provider, extractor *Extractor, customers ProfileReader, logger *slog.Logger, opts ...AssistantOption) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assistant{
		provider:  provider,
		extractor: extractor,
		customers: customers,
		prompt:    defaultSystemPrompt,
		timeout:   30 * time.Second,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultSystemPrompt returns the embedded prompt
func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

// LoadSystemPrompt reads a prompt file; an empty path yields the embedded one
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	return string(data), nil
}

// Reply answers one chat turn. An upstream failure is returned as
// *models.UpstreamServiceError; extraction problems never fail the turn.
func (a *Assistant) Reply(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &models.ValidationError{Field: "message", Reason: "required"}
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.prompt}}
	if memory := a.memory(ctx, req); memory != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: memory})
	}
	messages = append(messages, trimHistory(req.History)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.provider.Complete(callCtx, messages)
	a.metrics.ObserveLLM(a.provider.Name(), time.Since(start))
	if err != nil {
		a.metrics.ChatRequest("upstream_error")
		var upstream *models.UpstreamServiceError
		if !errors.As(err, &upstream) {
			err = &models.UpstreamServiceError{Provider: a.provider.Name(), Err: err}
		}
		return nil, err
	}

	extraction, err := a.extractor.Extract(ctx, reply, req.Fingerprint)
	if err != nil {
		a.logger.Error("order extraction failed", "error", err)
	}

	if extraction.OrderID != nil {
		a.metrics.ChatRequest("order")
	} else {
		a.metrics.ChatRequest("reply")
	}
	return &Response{Reply: extraction.Reply, OrderID: extraction.OrderID}, nil
}

// memory builds the known-customer note. Stored values win over the
// browser's cached snapshot.
func (a *Assistant) memory(ctx context.Context, req Request) string {
	var stored models.CustomerProfile
	if req.Fingerprint != "" && a.customers != nil {
		profile, found, err := a.customers.Lookup(ctx, req.Fingerprint)
		if err != nil {
			a.logger.Warn("customer lookup failed", "fingerprint", req.Fingerprint, "error", err)
		} else if found {
			stored = *profile
		}
	}

	var snapshot models.ProfilePatch
	if req.CustomerData != nil {
		snapshot = *req.CustomerData
	}
	known := models.Reconcile(stored, snapshot)
	if !known.Known() {
		return ""
	}
	return memoryNote(known)
}

func memoryNote(p models.CustomerProfile) string {
	var b strings.Builder
	b.WriteString("[CUSTOMER MEMORY]\n")
	b.WriteString("The customer writing next is already known:\n")
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	field("Name", p.Name)
	field("Phone", p.Phone)
	field("Preferred order type", string(p.OrderType))
	field("Car", p.CarInfo)
	field("Address", p.Address)
	field("Location", p.Location)
	if p.Name != "" {
		fmt.Fprintf(&b, "Greet them by name right away, e.g. \"أهلاً %s! شو حابب تطلب اليوم؟\"\n", p.Name)
	}
	b.WriteString("Do not ask again for anything listed above; ask only for what is missing.")
	return b.String()
}

// trimHistory keeps the last HistoryLimit turns and normalizes roles
func trimHistory(history []llm.Message) []llm.Message {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	out := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		role := llm.RoleAssistant
		if msg.Role == llm.RoleUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: msg.Content})
	}
	return out
}
