package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"moodmeal/src/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const systemPrompt = `You are a warm, practical nutrition coach. In at most three sentences, explain why the given meal suits the user's mood. Mention the meal by name and ground the explanation in its reason and nutritional benefit. Do not invent medical claims.`

// generator is the part of an eino chat model the explainer needs.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// LLM asks a chat model for an explanation.
type LLM struct {
	chat generator
}

// NewLLM connects to an OpenAI-compatible chat endpoint through eino.
func NewLLM(ctx context.Context, cfg config.LLMConfig) (*LLM, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &LLM{chat: cm}, nil
}

// newSlogHandler logs chat model runs to slog.
func newSlogHandler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			slog.Debug("eino component start", "name", info.Name, "type", info.Type, "component", info.Component)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			slog.Debug("eino component end", "name", info.Name, "type", info.Type, "component", info.Component)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			slog.Error("eino component error", "name", info.Name, "type", info.Type, "component", info.Component, "error", err)
			return ctx
		}).
		Build()
}

func prompt(req Request) string {
	m := req.Meal
	var b strings.Builder
	fmt.Fprintf(&b, "The user feels %s.", moodPhrase(req.Mood1, req.Mood2))
	if t := strings.TrimSpace(req.Text); t != "" {
		fmt.Fprintf(&b, " In their words: %q.", t)
	}
	fmt.Fprintf(&b, "\nMeal: %s (%s, %s, %d kcal).", m.Name, m.CulturalTheme, m.DietaryTheme, m.Calories)
	fmt.Fprintf(&b, "\nReason: %s.\nBenefit: %s.", clause(m.Reason), clause(m.Benefit))
	return b.String()
}

func (l *LLM) Explain(ctx context.Context, req Request) (out string, err error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "MealExplainer",
		Component: components.ComponentOfChatModel,
	}, newSlogHandler())

	p := prompt(req)
	ctx = callbacks.OnStart(ctx, p)
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		} else {
			callbacks.OnEnd(ctx, out)
		}
	}()

	msgs := []*schema.Message{schema.SystemMessage(systemPrompt), schema.UserMessage(p)}
	resp, err := l.chat.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate explanation: empty response")
	}
	return strings.TrimSpace(resp.Content), nil
}
