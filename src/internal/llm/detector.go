package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"moodmeal/src/internal/config"

	"github.com/sashabaranov/go-openai"
)

var ErrNoMoods = errors.New("model returned no moods")

// Detector classifies free text into two mood labels with a chat model.
type Detector struct {
	client *openai.Client
	model  string
	labels []string
}

func NewDetector(cfg config.LLMConfig, labels []string) *Detector {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Detector{
		client: openai.NewClientWithConfig(c),
		model:  cfg.Model,
		labels: labels,
	}
}

type detection struct {
	Mood1 string `json:"mood1"`
	Mood2 string `json:"mood2"`
}

func (d *Detector) systemPrompt() string {
	return "Classify the emotional state in the user's message. " +
		"Answer with a JSON object {\"mood1\": string, \"mood2\": string} where mood1 is the dominant mood and mood2 the secondary one. " +
		"Prefer these labels: " + strings.Join(d.labels, ", ") + "."
}

// Detect returns the primary and secondary mood found in text. Labels are
// returned as the model wrote them; callers resolve them onto the taxonomy.
func (d *Detector) Detect(ctx context.Context, text string) (string, string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: d.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("mood detection request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", ErrNoMoods
	}

	var out detection
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", "", fmt.Errorf("decode mood detection %q: %w", content, err)
	}
	out.Mood1 = strings.TrimSpace(out.Mood1)
	out.Mood2 = strings.TrimSpace(out.Mood2)
	if out.Mood1 == "" && out.Mood2 == "" {
		return "", "", ErrNoMoods
	}
	if out.Mood2 == "" {
		out.Mood2 = out.Mood1
	}
	if out.Mood1 == "" {
		out.Mood1 = out.Mood2
	}
	return out.Mood1, out.Mood2, nil
}
