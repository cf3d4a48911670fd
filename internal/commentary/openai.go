// Package commentary generates AI interpretation for captured screenshots
// via the OpenAI vision API.
package commentary

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// Config controls the OpenAI client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	// Prompts maps source IDs to instruction templates; sources without
	// an entry use the generic template.
	Prompts map[string]string
}

// Client implements radar.Commentator against the OpenAI chat API.
type Client struct {
	api     *openai.Client
	cfg     Config
	logger  *zap.Logger
	prompts map[string]string
}

// New creates a Client. The API key is required; everything else has
// defaults.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("commentary api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:     openai.NewClient(cfg.APIKey),
		cfg:     cfg,
		logger:  logger,
		prompts: cfg.Prompts,
	}, nil
}

// Commentary sends the screenshot plus the source's instruction template
// and parses the structured response. Errors here degrade to a plain
// caption upstream; they never fail a run.
func (c *Client) Commentary(ctx context.Context, src radar.SourceDescriptor, imagePath string) (*radar.Commentary, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: c.promptFor(src),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + encoded,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	parsed := Parse(resp.Choices[0].Message.Content)
	c.logger.Debug("commentary received",
		zap.String("source", src.ID),
		zap.String("context_tag", parsed.ContextTag))
	return &parsed, nil
}

func (c *Client) promptFor(src radar.SourceDescriptor) string {
	if p, ok := c.prompts[src.ID]; ok && p != "" {
		return p
	}
	return fmt.Sprintf(genericPrompt, src.Name)
}

// genericPrompt is the fallback instruction template. Per-source templates
// are configuration data and come in through Config.Prompts.
const genericPrompt = `ROLE: You are a professional crypto market analyst writing for a high-signal audience.

INPUT: %s screenshot. Assume the reader has already seen it; do not describe visuals.

TASK: Extract a concise Alpha Take about market state, behavior and structure. No price targets, no financial advice, no directional language. Use probabilistic language ("historically", "tends to", "often coincides").

OUTPUT FORMAT (MANDATORY):

ALPHA_TAKE: [2-4 sentences of interpretation]
CONTEXT_TAG: [one short regime label]
HASHTAGS: [#Tag1 #Tag2 #Tag3]`
