// Package llm wraps the external language-model capability behind a small
// interface so callers can treat it as a possibly-failing, rate-limited
// service.
package llm

import (
	"context"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wellsight/ddr-engine/internal/config"
)

// Client defines the language-model operations used by the engine.
type Client interface {
	// Generate produces text from a prompt plus grounding context.
	Generate(ctx context.Context, prompt, contextText string) (string, error)
	// DescribeImage produces a textual description of a referenced image.
	DescribeImage(ctx context.Context, imageRef string) (string, error)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client  sdk.Client
	model   string
	maxTok  int64
	timeout time.Duration
	limiter *rate.Limiter
}

// New creates a Client backed by the Anthropic SDK. Sampling temperature is
// pinned to zero so identical inputs yield identical outputs.
func New(cfg config.LLMConfig) Client {
	maxTok := int64(cfg.MaxTokens)
	if maxTok <= 0 {
		maxTok = 1024
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), 1)
	}

	return &sdkClient{
		client:  sdk.NewClient(option.WithAPIKey(cfg.Key)),
		model:   cfg.Model,
		maxTok:  maxTok,
		timeout: timeout,
		limiter: limiter,
	}
}

func (c *sdkClient) Generate(ctx context.Context, prompt, contextText string) (string, error) {
	content := prompt
	if contextText != "" {
		content = contextText + "\n\n" + prompt
	}
	return c.complete(ctx, content, nil)
}

func (c *sdkClient) DescribeImage(ctx context.Context, imageRef string) (string, error) {
	block := sdk.NewImageBlock(sdk.URLImageSourceParam{URL: imageRef})
	return c.complete(ctx, "Describe the drilling chart or figure in this image.", &block)
}

func (c *sdkClient) complete(ctx context.Context, text string, image *sdk.ContentBlockParamUnion) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm: rate limit wait")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(text)}
	if image != nil {
		blocks = append(blocks, *image)
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTok,
		Temperature: sdk.Float(0),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: create message")
	}

	out := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}

	zap.L().Debug("llm: message complete",
		zap.String("model", c.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return out, nil
}
