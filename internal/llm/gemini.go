package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/pavelanni/mockinterview/internal/llm/prompts"
)

// GeminiClient evaluates answers with Google Gemini.
type GeminiClient struct {
	client  *genai.Client
	model   string
	variant prompts.Variant
}

// NewGemini creates a Gemini evaluator.
func NewGemini(ctx context.Context, apiKey, modelName, variant string) (*GeminiClient, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &UnavailableError{
			Provider: "gemini",
			Code:     ErrCodeAPIKey,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}
	return &GeminiClient{client: client, model: modelName, variant: prompts.Variant(variant)}, nil
}

// Name implements Evaluator.
func (c *GeminiClient) Name() string { return "gemini" }

// Evaluate implements Evaluator.
func (c *GeminiClient) Evaluate(ctx context.Context, req Request) (Result, error) {
	prompt, err := prompts.BuildEvalPrompt(c.variant, prompts.EvalData{
		Context:  req.Context,
		Question: req.Question,
		Answer:   req.Answer,
		Code:     req.Code,
	})
	if err != nil {
		return Result{}, &UnavailableError{Provider: c.Name(), Code: ErrCodeInvalidInput, Message: "build prompt", Err: err}
	}

	temperature := float32(0.2)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  1024,
		ResponseMIMEType: "application/json",
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return Result{}, &UnavailableError{
			Provider: c.Name(),
			Code:     ErrCodeServiceDown,
			Message:  "Failed to generate evaluation",
			Err:      err,
		}
	}
	if resp == nil {
		return Result{}, &UnavailableError{Provider: c.Name(), Code: ErrCodeInvalidResponse, Message: "No response generated"}
	}

	raw := resp.Text()
	if raw == "" {
		return Result{}, &UnavailableError{Provider: c.Name(), Code: ErrCodeInvalidResponse, Message: "Empty response generated"}
	}
	slog.Debug("LLM response", "provider", c.Name(), "raw", raw)
	return decodeResult(c.Name(), raw)
}
