package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/models"
)

// OpenAIClient generates digests and answers follow-up questions through the
// OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	cfg    config.OpenAIConfig
	logger *log.Logger
}

// NewOpenAIClient builds the provider from configuration.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *log.Logger) *OpenAIClient {
	if logger == nil {
		logger = log.New(log.Writer(), "[GEN] ", log.LstdFlags)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}
}

// generatedArticle is the JSON shape the model is instructed to produce.
type generatedArticle struct {
	Headline   string                   `json:"headline"`
	Content    string                   `json:"content"`
	LeadSource string                   `json:"lead_source"`
	Sources    map[string]models.Source `json:"all_sources"`
	Insights   models.Insights          `json:"insights"`
	Media      []string                 `json:"multimedia"`
}

// Generate composes one digest, reporting progress through the sink and then
// delivering articles one at a time in composition order.
func (c *OpenAIClient) Generate(ctx context.Context, query string, sink Sink) error {
	if err := sink.Status(ctx, "Connecting to Server"); err != nil {
		return err
	}
	if err := sink.Status(ctx, "Starting Generation"); err != nil {
		return err
	}

	userPrompt := "Compose today's digest."
	if strings.TrimSpace(query) != "" {
		userPrompt = fmt.Sprintf(digestFocusPrompt, query)
	}
	if err := sink.Status(ctx, "Composing Articles"); err != nil {
		return err
	}
	raw, err := c.complete(ctx, digestSystemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("generate digest: %w", err)
	}

	var articles []generatedArticle
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &articles); err != nil {
		return fmt.Errorf("generate digest: model response is not a valid article array: %w", err)
	}
	if len(articles) == 0 {
		return fmt.Errorf("generate digest: model produced no articles")
	}

	if err := sink.Status(ctx, fmt.Sprintf("Compiling %d Articles", len(articles))); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, a := range articles {
		item := models.Item{
			ID:            uuid.NewString(),
			Headline:      a.Headline,
			Content:       a.Content,
			DatePublished: now,
			LeadSource:    a.LeadSource,
			Sources:       a.Sources,
			Insights:      a.Insights,
			Media:         a.Media,
		}
		if err := sink.Item(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Answer resolves a follow-up question against the concatenated digest
// content.
func (c *OpenAIClient) Answer(ctx context.Context, question, content string) (string, error) {
	prompt := fmt.Sprintf(followUpPrompt, content, question)
	answer, err := c.complete(ctx, followUpSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("answer follow-up: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: float32(c.cfg.Temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripCodeFence tolerates models that wrap JSON in markdown fences despite
// instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
