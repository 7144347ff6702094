package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/mockinterview/internal/llm/prompts"
)

// OpenAIClient evaluates answers through any OpenAI-compatible API.
type OpenAIClient struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// NewOpenAI creates a new OpenAI-compatible evaluator.
func NewOpenAI(baseURL, apiKey, modelName, variant string) (*OpenAIClient, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.Variant(variant),
	}, nil
}

// Name implements Evaluator.
func (c *OpenAIClient) Name() string { return "openai" }

// Ping checks that the endpoint is reachable and the model exists.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.GetModel(ctx, c.model); err != nil {
		return fmt.Errorf("get model %s: %w", c.model, err)
	}
	return nil
}

// Evaluate implements Evaluator.
func (c *OpenAIClient) Evaluate(ctx context.Context, req Request) (Result, error) {
	prompt, err := prompts.BuildEvalPrompt(c.variant, prompts.EvalData{
		Context:  req.Context,
		Question: req.Question,
		Answer:   req.Answer,
		Code:     req.Code,
	})
	if err != nil {
		return Result{}, &UnavailableError{Provider: c.Name(), Code: ErrCodeInvalidInput, Message: "build prompt", Err: err}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Result{}, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, &UnavailableError{Provider: c.Name(), Code: ErrCodeInvalidResponse, Message: "LLM returned no choices"}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "provider", c.Name(), "raw", raw)
	return decodeResult(c.Name(), raw)
}

func (c *OpenAIClient) classify(err error) error {
	code := ErrCodeServiceDown
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = ErrCodeAPIKey
		case http.StatusTooManyRequests:
			code = ErrCodeRateLimit
		case http.StatusBadRequest:
			code = ErrCodeInvalidInput
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &UnavailableError{Provider: c.Name(), Code: code, Message: "LLM API call", Err: err}
}
