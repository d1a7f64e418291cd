package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/bot"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
)

// newChatCmd creates the `zapclaw chat` command, a local REPL against the
// configured provider. Useful to test prompts without touching WhatsApp.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Opens an interactive terminal chat against the configured LLM
provider. Conversation history lives only in memory for the session.

Commands inside the chat:
  /reset  clears the in-memory history
  /sair   exits (Ctrl+D also works)

Examples:
  zapclaw chat
  zapclaw chat --config ./config.yaml`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	gateway := bot.NewGateway(cfg.API, logger)
	shaper := bot.NewShaper(cfg.Reply.MaxChars, cfg.Reply.LinksMax)

	fmt.Printf("ZapClaw chat — %s (%s)\n", gateway.Model(), gateway.Provider())
	fmt.Println("Digite sua mensagem. /reset limpa a conversa, /sair encerra.")
	fmt.Println()

	rl, err := readline.New("você> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	settings := store.Settings{
		SystemPrompt: store.DefaultSystemPrompt,
		Temperature:  store.DefaultTemperature,
	}
	var history []store.Turn

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("Até logo!")
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "/sair"):
			fmt.Println("Até logo!")
			return nil
		case strings.EqualFold(input, "/reset"):
			history = nil
			fmt.Println("Conversa limpa.")
			continue
		}

		reply := gateway.Ask(context.Background(), settings, history, input)
		reply = shaper.Shape(reply)
		fmt.Printf("zapclaw> %s\n\n", reply)

		now := time.Now().UnixMilli()
		history = append(history,
			store.Turn{Role: "user", Content: input, Timestamp: now},
			store.Turn{Role: "assistant", Content: reply, Timestamp: now},
		)
		if keep := cfg.Conversation.Keep; keep > 0 && len(history) > keep {
			history = history[len(history)-keep:]
		}
	}
}
