package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/migration"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <legacy-record>",
	Short: "Import a pipeline recorded by the legacy plan/execution workflow",
	Long: `Convert a legacy project record (YAML or JSON with name, language, type,
phase and an optional plan_file) into a pipeline state.

  plan       starts at INTAKE
  execution  starts at IMPLEMENTATION
  complete   is recorded as DONE

A plan_file is stored as the master plan artifact. An existing pipeline is
never overwritten; clear it first with 'quorum reset'.

Examples:
  quorum migrate .project/state.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := migration.ReadRecord(a.path(args[0]))
	if err != nil {
		return err
	}

	m := &migration.Migrator{
		States:     a.states,
		Store:      a.store,
		Governance: a.governance,
	}
	st, err := m.Migrate(ctx, rec)
	if errors.Is(err, orchestrator.ErrStateExists) {
		return fmt.Errorf("%w: use 'quorum reset' before migrating", err)
	}
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "legacy pipeline migrated",
		zap.String("run_id", st.RunID),
		zap.String("legacy_phase", string(rec.Phase)),
		zap.String("phase", string(st.Phase)))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s migrated legacy %s phase to %s\n\n",
		okStyle.Render("✓"), rec.Phase, phaseStyle(st.Phase).Render(string(st.Phase)))
	fmt.Fprint(out, renderStatus(st))
	return nil
}
