// Package bot – api.go exposes the assistant operations consumed by the
// admin HTTP server.
package bot

import (
	"context"
)

// Settings returns the current global system prompt and temperature.
func (a *Assistant) Settings() (string, float64, error) {
	s, err := a.store.Settings()
	if err != nil {
		return "", 0, err
	}
	return s.SystemPrompt, s.Temperature, nil
}

// UpdateSettings replaces the global settings. Temperature range validation
// happens at the HTTP handler.
func (a *Assistant) UpdateSettings(prompt string, temperature float64) error {
	return a.store.UpdateSettings(prompt, temperature)
}

// TestCompletion runs one completion against the current settings without
// touching any conversation history.
func (a *Assistant) TestCompletion(ctx context.Context, message string) (string, error) {
	settings, err := a.store.Settings()
	if err != nil {
		return "", err
	}
	reply, err := a.gateway.Complete(ctx, settings.SystemPrompt, settings.Temperature, nil, message)
	if err != nil {
		return "", err
	}
	return a.shaper.Shape(reply), nil
}

// Diagnostics reports the runtime configuration the /debug command and the
// admin UI show.
func (a *Assistant) Diagnostics() map[string]any {
	return map[string]any{
		"provider":   a.gateway.Provider(),
		"model":      a.gateway.Model(),
		"max_tokens": a.gateway.MaxTokens(),
		"timeout":    a.gateway.Timeout().String(),
		"window":     a.cfg.Conversation.Window,
		"keep":       a.cfg.Conversation.Keep,
		"channel":    a.channel.Name(),
		"connected":  a.channel.IsConnected(),
	}
}
