// Package quizgen fills a game's quiz pools by prompting an LLM proxy for
// multiple-choice questions on the game's subject.
package quizgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/obslog"
	"github.com/capricechess/caprice/internal/store"
)

const promptTemplate = "I need you to generate %d quiz questions for a chess-based educational game. " +
	"The questions should be about %s and suitable for a player of rank %s. " +
	"Each question should be multiple-choice (A-D) with 'question', 'choices', 'correct', and 'explanation'. " +
	"Return as a JSON list."

type Client struct {
	endpoint string
	apiKey   string
	model    string
	count    int
	http     *fasthttp.Client
	store    *store.Store
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.count = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(endpoint, apiKey string, st *store.Store, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    "llama3",
		count:    5,
		http:     &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		store:    st,
		timeout:  60 * time.Second,
		logger:   obslog.L().Named("quizgen"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// rawQuestion is the shape the prompt asks the model for.
type rawQuestion struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	Correct     string   `json:"correct"`
	Explanation string   `json:"explanation"`
}

// Fill generates questions for the subject and pushes them into the game's
// pool. Failures leave the pool empty; the gate falls back to its built-in
// question.
func (c *Client) Fill(ctx context.Context, code, subject string) error {
	if c.endpoint == "" {
		return fmt.Errorf("quiz api endpoint not configured")
	}
	prompt := fmt.Sprintf(promptTemplate, c.count, subject, "Intermediate")

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	raws, err := parseQuestions(text)
	if err != nil {
		return fmt.Errorf("parse questions: %w", err)
	}

	qs := make([]domain.QuizQuestion, 0, len(raws))
	for _, raw := range raws {
		answer := answerIndex(raw.Correct, raw.Choices)
		if raw.Question == "" || len(raw.Choices) < 2 || answer == 0 {
			continue
		}
		qs = append(qs, domain.QuizQuestion{
			Question: raw.Question,
			Options:  raw.Choices,
			Answer:   answer,
		})
	}
	if len(qs) == 0 {
		return fmt.Errorf("model returned no usable questions")
	}
	if err := c.store.PushQuestions(ctx, code, subject, qs); err != nil {
		return err
	}
	c.logger.Info("quiz pool filled",
		zap.String("code", code),
		zap.String("subject", subject),
		zap.Int("questions", len(qs)))
	return nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.endpoint)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return "", fmt.Errorf("quiz api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}

// parseQuestions reads the model output, tolerating prose around the JSON
// array.
func parseQuestions(text string) ([]rawQuestion, error) {
	var raws []rawQuestion
	if err := json.Unmarshal([]byte(text), &raws); err == nil {
		return raws, nil
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// answerIndex maps the model's 'correct' field to a 1-based option index.
// Accepts a bare letter ("B"), a prefixed choice ("B: Berlin"), or the full
// choice text. Returns 0 when nothing matches.
func answerIndex(correct string, choices []string) int {
	correct = strings.TrimSpace(correct)
	if correct == "" {
		return 0
	}
	letter := strings.ToUpper(correct[:1])
	if len(correct) == 1 || strings.HasPrefix(correct[1:], ":") || strings.HasPrefix(correct[1:], ".") {
		if idx := int(letter[0] - 'A'); idx >= 0 && idx < len(choices) {
			return idx + 1
		}
	}
	for i, choice := range choices {
		if strings.EqualFold(strings.TrimSpace(choice), correct) {
			return i + 1
		}
		// Choices often arrive prefixed like "C: 1857".
		if trimmed, ok := stripLetterPrefix(choice); ok && strings.EqualFold(trimmed, correct) {
			return i + 1
		}
	}
	return 0
}

func stripLetterPrefix(choice string) (string, bool) {
	choice = strings.TrimSpace(choice)
	if len(choice) > 2 && (choice[1] == ':' || choice[1] == '.') {
		return strings.TrimSpace(choice[2:]), true
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
