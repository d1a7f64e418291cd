// Package bot – llm.go is the HTTP client for LLM completions. Supports any
// OpenAI-compatible chat-completions endpoint and Ollama.
package bot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
)

// Gateway errors. Ask and AskImage map these onto the user-facing replies.
var (
	ErrProviderTimeout = errors.New("provider deadline exceeded")
	ErrProvider        = errors.New("provider request failed")
	ErrEmptyCompletion = errors.New("provider returned empty completion")
	ErrNotConfigured   = errors.New("provider not configured")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Fixed user-facing replies (pt-BR, matching the rest of the product).
const (
	replyTimeout       = "Desculpe, a resposta está demorando mais que o normal. Tente de novo em instantes."
	replyProviderError = "Desculpe, tive um problema ao gerar a resposta."
	replyEmpty         = "Desculpe, não consegui gerar uma resposta agora."
	replyNotConfigured = "O assistente ainda não foi configurado. Avise o administrador."
)

// concisenessHint is appended as a second system message so replies fit
// messaging constraints without relying on the configurable prompt.
const concisenessHint = "Responda de forma curta e direta, adequada a uma conversa de WhatsApp. Evite listas longas e formatação pesada."

// Gateway is the LLM completion client. The provider is fixed at
// construction; there is no cross-provider fallback.
type Gateway struct {
	provider        string // "openai" or "ollama"
	baseURL         string
	apiKey          string
	model           string
	visionModel     string
	maxTokens       int
	visionMaxTokens int
	timeout         time.Duration
	httpClient      *http.Client
	logger          *slog.Logger
}

// NewGateway creates a Gateway from the API config.
func NewGateway(cfg APIConfig, logger *slog.Logger) *Gateway {
	g := &Gateway{
		provider:        cfg.Provider,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		visionModel:     cfg.VisionModel,
		maxTokens:       cfg.MaxTokens,
		visionMaxTokens: cfg.VisionMaxTokens,
		timeout:         cfg.Timeout,
		httpClient: &http.Client{
			// No global timeout here — each call uses context.WithTimeout
			// for precise per-call control.
		},
		logger: logger.With("component", "llm"),
	}

	switch cfg.Provider {
	case "ollama":
		g.baseURL = strings.TrimSuffix(cfg.OllamaURL, "/")
		g.model = cfg.OllamaModel
		if g.visionModel == "" {
			g.visionModel = cfg.OllamaModel
		}
	default:
		g.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		if g.baseURL == "" {
			g.baseURL = "https://api.openai.com/v1"
		}
		if g.visionModel == "" {
			g.visionModel = g.model
		}
	}
	if g.timeout <= 0 {
		g.timeout = 15 * time.Second
	}
	return g
}

// Provider returns the configured provider name.
func (g *Gateway) Provider() string { return g.provider }

// Model returns the configured chat model.
func (g *Gateway) Model() string { return g.model }

// MaxTokens returns the completion token ceiling.
func (g *Gateway) MaxTokens() int { return g.maxTokens }

// Timeout returns the per-call deadline.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// Complete runs one chat completion: the configured system prompt, the
// conciseness hint, the history window and finally the user message. The
// call carries a hard deadline; errors map to the Err* sentinels.
func (g *Gateway) Complete(ctx context.Context, systemPrompt string, temperature float64, history []store.Turn, userMessage string) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+3)
	msgs = append(msgs,
		chatMessage{Role: "system", Content: systemPrompt},
		chatMessage{Role: "system", Content: concisenessHint},
	)
	for _, t := range history {
		msgs = append(msgs, chatMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userMessage})

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.complete(ctx, g.model, temperature, g.maxTokens, msgs, nil)
}

// Describe runs one vision completion over an inline base64 image. Uses
// the vision model, twice the normal deadline and a higher token ceiling.
func (g *Gateway) Describe(ctx context.Context, image []byte, mimeType, caption string, settings store.Settings) (string, error) {
	prompt := caption
	if strings.TrimSpace(prompt) == "" {
		prompt = "Descreva esta imagem de forma curta e útil."
	}

	ctx, cancel := context.WithTimeout(ctx, 2*g.timeout)
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString(image)

	if g.provider == "ollama" {
		msgs := []chatMessage{
			{Role: "system", Content: settings.SystemPrompt},
			{Role: "user", Content: prompt},
		}
		return g.complete(ctx, g.visionModel, settings.Temperature, g.visionMaxTokens, msgs, []string{encoded})
	}

	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	msgs := []chatMessage{
		{Role: "system", Content: settings.SystemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", mimeType, encoded),
			}},
		}},
	}
	return g.complete(ctx, g.visionModel, settings.Temperature, g.visionMaxTokens, msgs, nil)
}

// Ask is the user-facing wrapper around Complete: it never returns an
// error, mapping failures onto the fixed apology strings.
func (g *Gateway) Ask(ctx context.Context, settings store.Settings, history []store.Turn, userMessage string) string {
	reply, err := g.Complete(ctx, settings.SystemPrompt, settings.Temperature, history, userMessage)
	if err != nil {
		return g.apologyFor(err)
	}
	return reply
}

// AskImage is the user-facing wrapper around Describe.
func (g *Gateway) AskImage(ctx context.Context, image []byte, mimeType, caption string, settings store.Settings) string {
	reply, err := g.Describe(ctx, image, mimeType, caption, settings)
	if err != nil {
		return g.apologyFor(err)
	}
	return reply
}

// apologyFor maps a gateway error to its fixed reply. Timeouts get their
// own apology so slow-provider incidents read differently in the chat.
func (g *Gateway) apologyFor(err error) string {
	switch {
	case errors.Is(err, ErrProviderTimeout):
		return replyTimeout
	case errors.Is(err, ErrNotConfigured):
		return replyNotConfigured
	case errors.Is(err, ErrEmptyCompletion):
		return replyEmpty
	default:
		return replyProviderError
	}
}

// ---------- Wire Types (OpenAI-compatible) ----------

// contentPart represents a single part of multimodal message content.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

// imageURL holds the URL (including data:...) for vision.
type imageURL struct {
	URL string `json:"url"`
}

// chatMessage is a message in the OpenAI chat format. Content is either a
// string or []contentPart (vision).
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completions request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// chatResponse is the OpenAI-compatible chat completions response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ---------- Wire Types (Ollama) ----------

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64, no data: prefix
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// ---------- Request plumbing ----------

// complete dispatches one completion to the configured provider. images is
// only used by the ollama vision path (attached to the last user message).
func (g *Gateway) complete(ctx context.Context, model string, temperature float64, maxTokens int, msgs []chatMessage, images []string) (string, error) {
	switch g.provider {
	case "openai", "":
		return g.completeOpenAI(ctx, model, temperature, maxTokens, msgs)
	case "ollama":
		return g.completeOllama(ctx, model, temperature, maxTokens, msgs, images)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, g.provider)
	}
}

func (g *Gateway) completeOpenAI(ctx context.Context, model string, temperature float64, maxTokens int, msgs []chatMessage) (string, error) {
	if g.apiKey == "" {
		return "", ErrNotConfigured
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temperature,
	}
	if maxTokens > 0 {
		reqBody.MaxTokens = &maxTokens
	}

	var out chatResponse
	if err := g.post(ctx, g.baseURL+"/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if out.Error != nil {
		g.logger.Error("provider returned error payload",
			"type", out.Error.Type, "message", out.Error.Message)
		return "", fmt.Errorf("%w: %s", ErrProvider, out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (g *Gateway) completeOllama(ctx context.Context, model string, temperature float64, maxTokens int, msgs []chatMessage, images []string) (string, error) {
	oMsgs := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		text, _ := m.Content.(string)
		oMsgs = append(oMsgs, ollamaMessage{Role: m.Role, Content: text})
	}
	if len(images) > 0 && len(oMsgs) > 0 {
		oMsgs[len(oMsgs)-1].Images = images
	}

	reqBody := ollamaRequest{
		Model:    model,
		Messages: oMsgs,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}

	var out ollamaResponse
	if err := g.post(ctx, g.baseURL+"/api/chat", reqBody, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		g.logger.Error("ollama returned error payload", "message", out.Error)
		return "", fmt.Errorf("%w: %s", ErrProvider, out.Error)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// post sends one JSON request and decodes the JSON response into out.
func (g *Gateway) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.provider != "ollama" && g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("provider call timed out", "url", url, "elapsed", time.Since(start))
			return ErrProviderTimeout
		}
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The deadline can also expire mid-body, after Do succeeded.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("provider call timed out", "url", url, "elapsed", time.Since(start))
			return ErrProviderTimeout
		}
		return fmt.Errorf("%w: reading response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("provider returned non-2xx",
			"status", resp.StatusCode,
			"url", url,
			"body", truncate(string(body), 500))
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	return nil
}

// truncate shortens s to n bytes for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
