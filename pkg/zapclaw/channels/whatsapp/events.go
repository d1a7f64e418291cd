// Package whatsapp – events.go converts incoming whatsmeow events into the
// unified channels.IncomingMessage type and keeps the connection alive.
package whatsapp

import (
	"github.com/jholhewres/zapclaw/pkg/zapclaw/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.handleConnected(evt)

	case *events.Disconnected:
		w.handleDisconnected(evt)

	case *events.StreamReplaced:
		w.logger.Error("stream replaced, another device connected")
		w.connected.Store(false)

	case *events.LoggedOut:
		w.handleLoggedOut(evt)

	case *events.KeepAliveTimeout:
		w.handleKeepAliveTimeout(evt)

	case *events.ConnectFailure:
		w.handleConnectFailure(evt)

	case *events.QRScannedWithoutMultidevice:
		w.logger.Warn("QR scanned but multidevice not enabled")
	}
}

func (w *WhatsApp) handleConnected(_ *events.Connected) {
	wasConnected := w.connected.Swap(true)
	w.reconnectAttempts.Store(0)
	if !wasConnected {
		w.logger.Info("connected", "jid", w.clientJID())
	}
}

func (w *WhatsApp) handleDisconnected(_ *events.Disconnected) {
	wasConnected := w.connected.Swap(false)
	w.logger.Warn("disconnected", "was_connected", wasConnected)

	if wasConnected && w.ctx.Err() == nil {
		go w.attemptReconnect()
	}
}

func (w *WhatsApp) handleLoggedOut(evt *events.LoggedOut) {
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}
	w.logger.Error("logged out", "reason", reason, "on_connect", evt.OnConnect)

	// Session invalidated: start a fresh QR login.
	w.qrObserversMu.Lock()
	w.lastQR = nil
	w.qrObserversMu.Unlock()
	go func() {
		if err := w.loginWithQR(w.ctx); err != nil {
			w.logger.Warn("QR re-login failed", "error", err)
		}
	}()
}

func (w *WhatsApp) handleKeepAliveTimeout(evt *events.KeepAliveTimeout) {
	w.logger.Warn("keep-alive timeout",
		"error_count", evt.ErrorCount,
		"last_success", evt.LastSuccess)

	// Three consecutive failures means the socket is half-open: it looks
	// connected but is dead. Force a reconnect.
	if evt.ErrorCount >= 3 && w.connected.Load() {
		w.logger.Error("keep-alive failed repeatedly, forcing reconnection")
		w.connected.Store(false)
		go w.attemptReconnect()
	}
}

func (w *WhatsApp) handleConnectFailure(evt *events.ConnectFailure) {
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}
	permanent := evt.PermanentDisconnectDescription()

	w.logger.Error("connect failure",
		"reason", reason, "message", evt.Message, "permanent", permanent)

	if permanent == "" && w.ctx.Err() == nil {
		go w.attemptReconnect()
	}
}

// handleMessageEvt processes an incoming WhatsApp message event. ZapClaw
// answers direct chats only; groups, broadcasts and own messages are skipped.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.ToNonAD().String(),
		FromName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
	}

	extractMessageContent(evt.Message, msg)
	w.emitMessage(msg)
}

// extractMessageContent maps the WhatsApp payload onto the unified message.
// Text, images and video captions carry real content; everything else is
// typed MessageOther so the bot can ask for a supported format.
func extractMessageContent(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		msg.Type = channels.MessageOther
		return
	}

	if waMsg.Conversation != nil {
		msg.Type = channels.MessageText
		msg.Content = waMsg.GetConversation()
		return
	}

	if ext := waMsg.ExtendedTextMessage; ext != nil {
		msg.Type = channels.MessageText
		msg.Content = ext.GetText()
		return
	}

	if img := waMsg.ImageMessage; img != nil {
		msg.Type = channels.MessageImage
		msg.Content = img.GetCaption()
		msg.Media = &channels.MediaInfo{
			Type:          channels.MessageImage,
			MimeType:      img.GetMimetype(),
			FileSize:      img.GetFileLength(),
			Caption:       img.GetCaption(),
			DirectPath:    img.GetDirectPath(),
			MediaKey:      img.GetMediaKey(),
			FileSHA256:    img.GetFileSHA256(),
			FileEncSHA256: img.GetFileEncSHA256(),
		}
		return
	}

	// A captioned video reads as plain text input; the clip itself is not
	// downloaded.
	if vid := waMsg.VideoMessage; vid != nil && vid.GetCaption() != "" {
		msg.Type = channels.MessageText
		msg.Content = vid.GetCaption()
		return
	}

	msg.Type = channels.MessageOther
}
