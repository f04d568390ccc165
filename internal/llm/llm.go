// Package llm generates narrative feedback on graded answers through an
// OpenAI-compatible chat API. It never changes scores.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examdesk/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

type feedbackResponse struct {
	Feedback string `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Feedback asks the model for feedback on one graded answer.
func (c *Client) Feedback(ctx context.Context, q model.Question, a model.Answer) (string, error) {
	prompt, err := buildFeedbackPrompt(q, a)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", q.ID, "raw", raw)
	return parseFeedback(raw)
}

func parseFeedback(raw string) (string, error) {
	var fr feedbackResponse
	if err := json.Unmarshal([]byte(raw), &fr); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	fb := strings.TrimSpace(fr.Feedback)
	if fb == "" {
		return "", fmt.Errorf("LLM returned empty feedback")
	}
	return fb, nil
}
