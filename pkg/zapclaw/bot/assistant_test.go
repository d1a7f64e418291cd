package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/channels"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
)

// fakeChannel implements channels.Channel, MediaChannel and PresenceChannel
// in memory for orchestrator tests.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []string
	typing   int
	paused   int
	incoming chan *channels.IncomingMessage
	media    []byte
	mime     string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{incoming: make(chan *channels.IncomingMessage, 16)}
}

func (f *fakeChannel) Name() string                      { return "fake" }
func (f *fakeChannel) Connect(ctx context.Context) error { return nil }
func (f *fakeChannel) Disconnect() error                 { return nil }
func (f *fakeChannel) IsConnected() bool                 { return true }

func (f *fakeChannel) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg.Content)
	return nil
}

func (f *fakeChannel) Receive() <-chan *channels.IncomingMessage { return f.incoming }

func (f *fakeChannel) DownloadMedia(ctx context.Context, msg *channels.IncomingMessage) ([]byte, string, error) {
	return f.media, f.mime, nil
}

func (f *fakeChannel) SendTyping(ctx context.Context, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeChannel) StopTyping(ctx context.Context, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused++
	return nil
}

func (f *fakeChannel) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testAssistant(t *testing.T, handler http.HandlerFunc) (*Assistant, *fakeChannel, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "bot.db"), sanitize.New(0), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	cfg.Presence.Interval = 50 * time.Millisecond
	cfg.FastPath.PrimaryLink = "https://example.com/comece"

	apiCfg := cfg.API
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		apiCfg.BaseURL = srv.URL
		apiCfg.APIKey = "test-key"
		apiCfg.Timeout = 2 * time.Second
	}

	ch := newFakeChannel()
	a := NewAssistant(cfg, ch, st, NewGateway(apiCfg, testLogger()), testLogger())
	a.Start(context.Background())
	t.Cleanup(a.Stop)
	return a, ch, st
}

func deliver(t *testing.T, ch *fakeChannel, msg *channels.IncomingMessage) {
	t.Helper()
	ch.incoming <- msg
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ch.sentCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no reply sent")
}

func textMsg(content string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		ID:        "msg-1",
		From:      "5511999999999@s.whatsapp.net",
		Type:      channels.MessageText,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestHandleTextFlow(t *testing.T) {
	_, ch, st := testAssistant(t, openAIReply("Uma resposta do modelo."))

	deliver(t, ch, textMsg("qual a previsão do tempo?"))

	if got := ch.lastSent(); got != "Uma resposta do modelo." {
		t.Errorf("reply = %q", got)
	}

	turns, err := st.RecentWindow("5511999999999@s.whatsapp.net", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("roles: %+v", turns)
	}
}

func TestTurnTimestamps(t *testing.T) {
	_, ch, st := testAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		// Model latency separates the two turns in wall-clock time.
		time.Sleep(5 * time.Millisecond)
		openAIReply("resposta")(w, r)
	})

	deliver(t, ch, textMsg("oi"))

	turns, err := st.RecentWindow("5511999999999@s.whatsapp.net", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns", len(turns))
	}

	// Timestamps carry wall-clock milliseconds so the user and assistant
	// turns of one exchange never collide.
	const msFloor = int64(1_000_000_000_000)
	for _, turn := range turns {
		if turn.Timestamp < msFloor {
			t.Errorf("%s turn ts = %d, want millisecond precision", turn.Role, turn.Timestamp)
		}
	}
	if turns[1].Timestamp <= turns[0].Timestamp {
		t.Errorf("assistant ts %d not after user ts %d", turns[1].Timestamp, turns[0].Timestamp)
	}
}

func TestTimeoutApologyPersisted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "bot.db"), sanitize.New(0), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Presence.Interval = 50 * time.Millisecond
	apiCfg := cfg.API
	apiCfg.BaseURL = srv.URL
	apiCfg.APIKey = "test-key"
	apiCfg.Timeout = 50 * time.Millisecond

	ch := newFakeChannel()
	a := NewAssistant(cfg, ch, st, NewGateway(apiCfg, testLogger()), testLogger())
	a.Start(context.Background())
	t.Cleanup(a.Stop)

	deliver(t, ch, textMsg("pergunta lenta demais"))

	if got := ch.lastSent(); got != replyTimeout {
		t.Errorf("reply = %q", got)
	}

	// The apology is a real assistant turn, kept alongside the user turn.
	turns, err := st.RecentWindow("5511999999999@s.whatsapp.net", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns", len(turns))
	}
	if turns[1].Role != "assistant" || turns[1].Content != replyTimeout {
		t.Errorf("assistant turn = %+v", turns[1])
	}
}

func TestFastPathSkipsModel(t *testing.T) {
	called := false
	_, ch, st := testAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		openAIReply("nunca deveria chegar aqui")(w, r)
	})

	deliver(t, ch, textMsg("Nunca joguei"))

	if called {
		t.Error("model should not be called on fast path")
	}
	reply := ch.lastSent()
	if !strings.Contains(reply, "https://example.com/comece") {
		t.Errorf("reply = %q", reply)
	}

	// Fast-path replies still persist as assistant turns.
	turns, _ := st.RecentWindow("5511999999999@s.whatsapp.net", 10)
	if len(turns) != 2 || turns[1].Role != "assistant" {
		t.Errorf("turns: %+v", turns)
	}
}

func TestResetCommand(t *testing.T) {
	_, ch, st := testAssistant(t, openAIReply("ok"))
	jid := "5511999999999@s.whatsapp.net"

	if err := st.AppendTurn(jid, "user", "oi", 1); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendTurn(jid, "assistant", "olá", 2); err != nil {
		t.Fatal(err)
	}

	deliver(t, ch, textMsg(" /RESET "))

	if got := ch.lastSent(); got != replyResetDone {
		t.Errorf("reply = %q", got)
	}
	n, _ := st.CountTurns(jid)
	if n != 0 {
		t.Errorf("turns after reset = %d", n)
	}
}

func TestDebugCommand(t *testing.T) {
	called := false
	_, ch, _ := testAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	deliver(t, ch, textMsg("/debug"))

	if called {
		t.Error("model should not be called for /debug")
	}
	reply := ch.lastSent()
	if !strings.Contains(reply, "provider: openai") {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(reply, "turnos armazenados: 0") {
		t.Errorf("reply = %q", reply)
	}
}

func TestEmptyInput(t *testing.T) {
	_, ch, st := testAssistant(t, openAIReply("ok"))

	msg := textMsg("")
	msg.Type = channels.MessageOther
	deliver(t, ch, msg)

	if got := ch.lastSent(); got != replyNoInput {
		t.Errorf("reply = %q", got)
	}
	n, _ := st.CountTurns("5511999999999@s.whatsapp.net")
	if n != 0 {
		t.Errorf("turns persisted = %d", n)
	}
}

func TestImageFlow(t *testing.T) {
	_, ch, st := testAssistant(t, openAIReply("Vejo um gato laranja."))
	ch.media = []byte{1, 2, 3}
	ch.mime = "image/jpeg"

	msg := textMsg("de quem é esse gato?")
	msg.Type = channels.MessageImage
	msg.Media = &channels.MediaInfo{Type: channels.MessageImage, MimeType: "image/jpeg"}
	deliver(t, ch, msg)

	if got := ch.lastSent(); got != "Vejo um gato laranja." {
		t.Errorf("reply = %q", got)
	}

	turns, _ := st.RecentWindow("5511999999999@s.whatsapp.net", 10)
	if len(turns) != 2 {
		t.Fatalf("got %d turns", len(turns))
	}
	if !strings.HasPrefix(turns[0].Content, "[imagem]") {
		t.Errorf("user turn = %q", turns[0].Content)
	}
}

func TestTypingKeepAlive(t *testing.T) {
	_, ch, _ := testAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		openAIReply("devagar")(w, r)
	})

	deliver(t, ch, textMsg("pergunta lenta"))

	// Allow the deferred stop to run.
	time.Sleep(50 * time.Millisecond)

	ch.mu.Lock()
	typing, paused := ch.typing, ch.paused
	ch.mu.Unlock()

	if typing < 2 {
		t.Errorf("typing refreshes = %d, want >= 2", typing)
	}
	if paused == 0 {
		t.Error("expected a final paused presence")
	}
}

func TestTrimAfterReply(t *testing.T) {
	_, ch, st := testAssistant(t, openAIReply("resposta"))
	jid := "5511999999999@s.whatsapp.net"

	for i := 0; i < 30; i++ {
		if err := st.AppendTurn(jid, "user", "antiga", int64(i)); err != nil {
			t.Fatal(err)
		}
	}

	deliver(t, ch, textMsg("nova mensagem"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := st.CountTurns(jid); n <= 20 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	n, _ := st.CountTurns(jid)
	t.Errorf("turns after trim = %d, want <= 20", n)
}
