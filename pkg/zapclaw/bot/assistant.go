// Package bot – assistant.go is the turn orchestrator: it consumes incoming
// messages, drives the store/gateway/shaper pipeline and sends replies.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/channels"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
)

// Fixed user-facing replies for the orchestrator paths.
const (
	replyNoInput   = "No momento, respondo apenas mensagens de texto ou imagens."
	replyResetDone = "Memória desta conversa foi apagada. Podemos recomeçar!"
	replyInternal  = "Tive um problema ao responder agora. Tente novamente."
)

// Assistant owns the full reply pipeline for one channel.
type Assistant struct {
	cfg     *Config
	channel channels.Channel
	store   *store.Store
	gateway *Gateway
	matcher *Matcher
	shaper  *Shaper
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAssistant wires the orchestrator. The channel must also implement
// channels.MediaChannel and channels.PresenceChannel for the vision and
// typing paths; both are checked dynamically so tests can use plain fakes.
func NewAssistant(cfg *Config, ch channels.Channel, st *store.Store, gw *Gateway, logger *slog.Logger) *Assistant {
	return &Assistant{
		cfg:     cfg,
		channel: ch,
		store:   st,
		gateway: gw,
		matcher: NewMatcher(cfg.FastPath),
		shaper:  NewShaper(cfg.Reply.MaxChars, cfg.Reply.LinksMax),
		logger:  logger.With("component", "assistant"),
	}
}

// Start launches the message loop. It returns immediately; Stop cancels it.
func (a *Assistant) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.messageLoop()
	a.logger.Info("assistant started")
}

// Stop cancels the message loop.
func (a *Assistant) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.logger.Info("assistant stopped")
}

func (a *Assistant) messageLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg, ok := <-a.channel.Receive():
			if !ok {
				return
			}
			// One goroutine per message: users never block each other.
			// Two quick messages from the same user may interleave; that
			// matches the transport's own ordering guarantees.
			go a.handleMessage(msg)
		}
	}
}

// handleMessage runs one full turn. It never panics the process: every
// failure ends in an apology reply and a log line.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic handling message", "from", msg.From, "panic", r)
			a.sendReply(msg.From, replyInternal)
		}
	}()

	text := strings.TrimSpace(msg.Content)

	switch {
	case msg.Type == channels.MessageImage && msg.Media != nil:
		a.handleImage(msg, text)

	case text == "":
		// Sticker, audio, empty caption... nothing we can work with.
		a.sendReply(msg.From, replyNoInput)

	case strings.EqualFold(text, "/reset"):
		a.handleReset(msg.From)

	case strings.EqualFold(text, "/debug"):
		a.handleDebug(msg.From)

	default:
		a.handleText(msg.From, text)
	}
}

// handleText is the main path: persist, fast path or model, shape, persist,
// trim, send. The history window is read before the user turn lands so the
// prompt carries the new message exactly once.
func (a *Assistant) handleText(from, text string) {
	history, err := a.store.RecentWindow(from, a.cfg.Conversation.Window)
	if err != nil {
		a.logger.Error("loading history", "from", from, "error", err)
		a.sendReply(from, replyInternal)
		return
	}

	if err := a.store.AppendTurn(from, "user", text, time.Now().UnixMilli()); err != nil {
		a.logger.Error("persisting user turn", "from", from, "error", err)
		a.sendReply(from, replyInternal)
		return
	}

	stop := a.keepTyping(from)
	defer stop()

	var reply string
	if canned, ok := a.matcher.Match(text); ok {
		a.logger.Debug("fast path hit", "from", from)
		reply = canned
	} else {
		settings, err := a.store.Settings()
		if err != nil {
			a.logger.Error("loading settings", "error", err)
			a.sendReply(from, replyInternal)
			return
		}
		reply = a.shaper.Shape(a.gateway.Ask(a.ctx, settings, history, text))
	}

	a.finishTurn(from, reply)
}

// handleImage is the vision path: download, describe, persist both turns,
// trim, send. Fast path and the text model never run here.
func (a *Assistant) handleImage(msg *channels.IncomingMessage, caption string) {
	stop := a.keepTyping(msg.From)
	defer stop()

	media, ok := a.channel.(channels.MediaChannel)
	if !ok {
		a.sendReply(msg.From, replyNoInput)
		return
	}

	data, mimeType, err := media.DownloadMedia(a.ctx, msg)
	if err != nil {
		a.logger.Error("downloading image", "from", msg.From, "error", err)
		a.sendReply(msg.From, replyProviderError)
		return
	}

	settings, err := a.store.Settings()
	if err != nil {
		a.logger.Error("loading settings", "error", err)
		a.sendReply(msg.From, replyInternal)
		return
	}

	now := time.Now().UnixMilli()
	userTurn := "[imagem]"
	if caption != "" {
		userTurn = "[imagem] " + caption
	}
	if err := a.store.AppendTurn(msg.From, "user", userTurn, now); err != nil {
		a.logger.Error("persisting image turn", "from", msg.From, "error", err)
		a.sendReply(msg.From, replyInternal)
		return
	}

	reply := a.shaper.Shape(a.gateway.AskImage(a.ctx, data, mimeType, caption, settings))
	a.finishTurn(msg.From, reply)
}

// handleReset wipes the conversation. Neither the command nor the
// confirmation is persisted.
func (a *Assistant) handleReset(from string) {
	if err := a.store.Reset(from); err != nil {
		a.logger.Error("resetting conversation", "from", from, "error", err)
		a.sendReply(from, replyInternal)
		return
	}
	a.sendReply(from, replyResetDone)
}

// handleDebug answers with a diagnostic summary without touching the model
// or the history.
func (a *Assistant) handleDebug(from string) {
	count, err := a.store.CountTurns(from)
	if err != nil {
		a.logger.Error("counting turns", "from", from, "error", err)
		a.sendReply(from, replyInternal)
		return
	}
	summary := fmt.Sprintf(
		"ZapClaw debug\nturnos armazenados: %d\nprovider: %s\nmodelo: %s\nmax_tokens: %d\ntimeout: %s",
		count, a.gateway.Provider(), a.gateway.Model(), a.gateway.MaxTokens(), a.gateway.Timeout())
	a.sendReply(from, summary)
}

// finishTurn persists the assistant reply, trims the history and sends.
// The user turn is already on disk; a failure here still reaches the user
// as an apology and is never rolled back.
func (a *Assistant) finishTurn(from, reply string) {
	if err := a.store.AppendTurn(from, "assistant", reply, time.Now().UnixMilli()); err != nil {
		a.logger.Error("persisting assistant turn", "from", from, "error", err)
		a.sendReply(from, replyInternal)
		return
	}
	if err := a.store.Trim(from, a.cfg.Conversation.Keep); err != nil {
		a.logger.Error("trimming history", "from", from, "error", err)
	}
	a.sendReply(from, reply)
}

// keepTyping shows "composing" to the user while the bot works: one
// immediate presence, a refresh on every tick, and a final "paused" when
// the returned stop function runs.
func (a *Assistant) keepTyping(to string) func() {
	presence, ok := a.channel.(channels.PresenceChannel)
	if !ok {
		return func() {}
	}

	interval := a.cfg.Presence.Interval
	if interval <= 0 {
		interval = 7 * time.Second
	}

	ctx, cancel := context.WithCancel(a.ctx)
	_ = presence.SendTyping(ctx, to)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = presence.SendTyping(ctx, to)
			}
		}
	}()

	return func() {
		cancel()
		// Use the assistant context: the keep-alive one is already gone.
		_ = presence.StopTyping(a.ctx, to)
	}
}

func (a *Assistant) sendReply(to, content string) {
	if content == "" {
		return
	}
	err := a.channel.Send(a.ctx, to, &channels.OutgoingMessage{Content: content})
	if err != nil {
		a.logger.Error("sending reply", "to", to, "error", err)
	}
}
