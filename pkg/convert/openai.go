package convert

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

const systemPrompt = "You are a C to C# migration engine. You translate C translation units " +
	"into semantically equivalent C# source files and reply with nothing but the C# code."

// OpenAIGenerator converts units through an OpenAI-compatible chat completion
// endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *telemetry.Logger
}

// NewOpenAIGenerator constructs a generator against api.openai.com. baseURL
// may be empty; a non-empty value points the client at a compatible server.
func NewOpenAIGenerator(apiKey, baseURL, chatModel string, log *telemetry.Logger) *OpenAIGenerator {
	var client *openai.Client
	if baseURL != "" {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		client = openai.NewClientWithConfig(cfg)
	} else {
		client = openai.NewClient(apiKey)
	}
	if chatModel == "" {
		chatModel = openai.GPT4o
	}
	return &OpenAIGenerator{
		client: client,
		model:  chatModel,
		log:    log.NewComponentLogger("convert"),
	}
}

// Name implements Generator.
func (g *OpenAIGenerator) Name() string { return "openai" }

// Convert implements Generator.
func (g *OpenAIGenerator) Convert(ctx context.Context, unit *model.Unit, deps map[string]string, feedback *Feedback) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(unit, deps, feedback)},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", model.NewError(model.ErrKindGeneration, "chat completion failed", err).WithUnit(unit.ID)
	}
	if len(resp.Choices) == 0 {
		return "", model.NewError(model.ErrKindGeneration, "chat completion returned no choices", nil).WithUnit(unit.ID)
	}

	g.log.WithUnitID(unit.ID).
		WithField("model", g.model).
		WithField("duration", time.Since(start).String()).
		WithField("tokens", resp.Usage.TotalTokens).
		Debug("conversion completed")

	src := stripFences(resp.Choices[0].Message.Content)
	if strings.TrimSpace(src) == "" {
		return "", model.NewError(model.ErrKindGeneration, "chat completion returned empty source", nil).WithUnit(unit.ID)
	}
	return src, nil
}
