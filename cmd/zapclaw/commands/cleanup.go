package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
	"github.com/jholhewres/zapclaw/pkg/zapclaw/store"
)

// newCleanupCmd creates the `zapclaw cleanup` command that removes
// corrupted turns from the conversation database.
func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove corrupted turns from the database",
		Long: `Scans the conversation database and deletes turns whose stored
content carries the mixed-script corruption signature or exceeds the hard
length ceiling. Deletion is permanent.

Examples:
  zapclaw cleanup
  zapclaw cleanup --config ./config.yaml`,
		RunE: runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	st, err := store.Open(cfg.Database, sanitize.New(cfg.Sanitize.MaxLen), logger)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer st.Close()

	removed, err := st.CleanupCorrupted()
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	if removed == 0 {
		fmt.Println("Nenhum turno corrompido encontrado.")
	} else {
		fmt.Printf("Removidos %d turnos corrompidos.\n", removed)
	}
	return nil
}
