package store

import (
	"strings"
	"testing"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
)

func TestCleanupCorrupted(t *testing.T) {
	s := testStore(t)
	jid := "jid@s.whatsapp.net"

	// Insert raw rows directly so the inline sanitizer cannot repair them
	// first, simulating data written before the cleaning policy existed.
	insertRaw := func(content string) {
		t.Helper()
		_, err := s.db.Exec(
			`INSERT INTO conversations (user_jid, role, content, ts) VALUES (?, 'assistant', ?, 1)`,
			jid, content,
		)
		if err != nil {
			t.Fatal(err)
		}
	}

	insertRaw("resposta normal")
	insertRaw("олא次 lixo de encoding")
	insertRaw(strings.Repeat("x", sanitize.HardCeiling+100))

	removed, err := s.CleanupCorrupted()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	n, err := s.CountTurns(jid)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("surviving rows = %d, want 1", n)
	}

	t.Run("second pass is a no-op", func(t *testing.T) {
		removed, err := s.CleanupCorrupted()
		if err != nil {
			t.Fatal(err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})
}
