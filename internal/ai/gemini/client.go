package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGenerationModel = "gemini-2.5-flash"
	defaultEmbeddingModel  = "gemini-embedding-001"

	retryBaseDelay = 2 * time.Second
	// Quota errors asking for a longer pause than this are not worth retrying
	// inline; the caller's fallback path handles them.
	maxInlineRetryDelay = 15 * time.Second
)

// sleep is swapped out in tests.
var sleep = time.Sleep

var retryAfterPattern = regexp.MustCompile(`retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

// Client wraps the Google GenAI client for text generation and embeddings.
type Client struct {
	client          *genai.Client
	generationModel string
	embeddingModel  string
	maxRetries      int
	logger          *zap.Logger
}

type Config struct {
	APIKey          string
	GenerationModel string
	EmbeddingModel  string
	MaxRetries      int
}

// NewClient creates a Client configured for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	generationModel := strings.TrimSpace(cfg.GenerationModel)
	if generationModel == "" {
		generationModel = defaultGenerationModel
	}

	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		client:          client,
		generationModel: generationModel,
		embeddingModel:  embeddingModel,
		maxRetries:      maxRetries,
		logger:          logger,
	}, nil
}

// GenerateText sends the prompt to Gemini and returns the aggregated textual
// response.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gemini client is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var output string
	err := c.withRetries(ctx, "generate content", func() error {
		resp, err := c.client.Models.GenerateContent(ctx, c.generationModel, genai.Text(prompt), nil)
		if err != nil {
			return err
		}

		text := collectText(resp)
		if text == "" {
			return errors.New("gemini api returned empty response")
		}

		output = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return output, nil
}

// EmbedTexts requests one vector per input text, preserving order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("gemini client is not initialized")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Role: genai.RoleUser,
			Parts: []*genai.Part{{
				Text: text,
			}},
		})
	}

	var vectors [][]float32
	err := c.withRetries(ctx, "embed content", func() error {
		resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
		if err != nil {
			return err
		}

		if len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("gemini api returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
		}

		vectors = make([][]float32, 0, len(resp.Embeddings))
		for _, embedding := range resp.Embeddings {
			if embedding == nil || len(embedding.Values) == 0 {
				return errors.New("gemini api returned an empty embedding")
			}
			vectors = append(vectors, embedding.Values)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	return vectors, nil
}

func (c *Client) withRetries(ctx context.Context, operation string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}

		if !retryableError(lastErr) || attempt == c.maxRetries {
			return lastErr
		}

		c.logger.Debug("retrying gemini call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		sleep(retryBaseDelay * time.Duration(attempt))
	}

	return lastErr
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// retryableError reports whether the error is a transient provider condition.
// Quota errors that name a pause longer than maxInlineRetryDelay are treated
// as permanent for this call.
func retryableError(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		delay, ok := quotaRetryDelay(apiErr.Message)
		return !ok || delay <= maxInlineRetryDelay
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func quotaRetryDelay(message string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(strings.ToLower(message))
	if match == nil {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(seconds * float64(time.Second)), true
}

func (c *Client) GenerationModel() string {
	if c == nil {
		return ""
	}
	return c.generationModel
}

func (c *Client) EmbeddingModel() string {
	if c == nil {
		return ""
	}
	return c.embeddingModel
}
