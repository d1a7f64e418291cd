package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/bot"
)

// newConfigCmd creates the `zapclaw config` command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	configCmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)
	return configCmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after merging the config file over the
defaults. The API key is always masked.

Examples:
  zapclaw config show
  zapclaw config show --config ./config.yaml`,
		RunE: runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Never print the real key.
	shown := *cfg
	if shown.API.APIKey != "" {
		shown.API.APIKey = maskKey(shown.API.APIKey)
	}

	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key in the OS keyring",
		Long: `Reads the API key with hidden input and saves it to the operating
system keyring (Secret Service, Keychain or Credential Manager). The config
file never needs to contain the real key.

Examples:
  zapclaw config set-key`,
		RunE: runConfigSetKey,
	}
}

func runConfigSetKey(_ *cobra.Command, _ []string) error {
	if !bot.KeyringAvailable() {
		return fmt.Errorf("o keyring do sistema não está disponível; use a variável ZAPCLAW_API_KEY")
	}

	key, err := readSecret("API key (entrada oculta): ")
	if err != nil {
		return fmt.Errorf("reading key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("nenhuma chave informada")
	}

	if err := bot.StoreAPIKey(key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	fmt.Println("Chave salva no keyring do sistema.")
	return nil
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the LLM API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := bot.DeleteAPIKey(); err != nil {
				return fmt.Errorf("deleting key: %w", err)
			}
			fmt.Println("Chave removida do keyring.")
			return nil
		},
	}
}

// readSecret reads a line from the terminal without echoing, falling back
// to plain stdin when no TTY is available (piped input).
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// maskKey keeps only a short prefix of the key visible.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + strings.Repeat("*", 4)
}
