package category

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// AISuggestion is what the completion provider proposes for free-text input.
type AISuggestion struct {
	CorrectedName   string `json:"corrected_name"`
	SuggestedParent string `json:"suggested_parent"`
	Confidence      int    `json:"confidence"`
}

// Suggester proposes a category name for input. known lists nearby
// category names the model may pick from.
type Suggester interface {
	Suggest(ctx context.Context, input string, known []string) (*AISuggestion, error)
}

// AIConfig configures AIClient.
type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

const breakerName = "category-ai"

// AIClient calls an OpenAI-compatible chat completions endpoint behind a
// circuit breaker.
type AIClient struct {
	cfg  AIConfig
	http *http.Client
	cb   *gobreaker.CircuitBreaker[*AISuggestion]
	log  zerolog.Logger
}

// NewAIClient creates the client. The breaker opens after 5 consecutive
// failures and probes again after 1 minute.
func NewAIClient(cfg AIConfig) *AIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log := logging.With("category_ai")
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*AISuggestion](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &AIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb:   cb,
		log:  log,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Suggest asks the provider for a cleaned-up category name.
func (c *AIClient) Suggest(ctx context.Context, input string, known []string) (*AISuggestion, error) {
	out, err := c.cb.Execute(func() (*AISuggestion, error) {
		return c.complete(ctx, input, known)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		c.log.Warn().Err(err).Msg("category suggestion failed")
	}
	return out, err
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You normalize category names for a review platform. ` +
	`Reply with a JSON object {"corrected_name": string, "suggested_parent": string, "confidence": integer 0-100}. ` +
	`corrected_name is the properly spelled, title-cased category name. ` +
	`suggested_parent is the best matching name from the known list, or "".`

func (c *AIClient) complete(ctx context.Context, input string, known []string) (*AISuggestion, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Input: %q\nKnown categories: %s", input, strings.Join(known, ", "))},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai response: status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("ai response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("ai response: no choices")
	}

	var s AISuggestion
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &s); err != nil {
		return nil, fmt.Errorf("ai suggestion: %w", err)
	}
	s.CorrectedName = strings.TrimSpace(s.CorrectedName)
	if s.CorrectedName == "" {
		return nil, errors.New("ai suggestion: empty name")
	}
	return &s, nil
}
