package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

var (
	runRoles   []string
	runTimeout time.Duration
	statusJSON bool
	resetForce bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, resumeCmd} {
		cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout (default pipeline.run_timeout)")
	}
	runCmd.Flags().StringSliceVar(&runRoles, "role", nil, "pin the participating roles instead of inferring them at intake")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw pipeline state as JSON")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "reset even when the pipeline is not stuck or done")

	rootCmd.AddCommand(runCmd, resumeCmd, statusCmd, resetCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new pipeline",
	Long: `Start a new pipeline at INTAKE and drive it until it is DONE, STUCK,
halted by an integrity failure, or interrupted.

Deliverables for each phase are read from pipeline.deliverables_dir
(default .quorum/deliverables), one file per artifact type:
master_plan.md, architecture.md, role_plan.md, qa_validation.json,
review_report.json, audit_report.json and recovery_plan.md.

Examples:
  # Start in the current project
  quorum run

  # Start another project with a fixed set of roles
  quorum run -C ../billing --role architect --role backend`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return drivePipeline(cmd, false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an existing pipeline from its recorded phase",
	Long: `Continue the pipeline recorded in .quorum/state.json. Use this after a
crash, Ctrl-C, or once an integrity failure has been resolved. A STUCK
pipeline cannot be resumed; inspect it with 'quorum status' and clear it
with 'quorum reset'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return drivePipeline(cmd, true)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current pipeline state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the pipeline state so a new run can start",
	Long: `Discard .quorum/state.json. Stored artifacts are kept.

A pipeline that is still in progress is only reset with --force.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func drivePipeline(cmd *cobra.Command, resume bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.connectEvents(ctx)

	roles := make([]skills.Role, 0, len(runRoles))
	for _, r := range runRoles {
		role := skills.Role(r)
		if _, ok := skills.Default(role); !ok {
			return fmt.Errorf("unknown role %q", r)
		}
		roles = append(roles, role)
	}

	exec, err := a.executor(roles)
	if err != nil {
		return err
	}

	timeout := runTimeout
	if timeout == 0 {
		timeout = a.cfg.Pipeline.RunTimeout.Duration()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	printer := newProgressPrinter(cmd.OutOrStdout())
	exec.OnProgress(printer.Print)

	stopWatch := a.watchGovernance(ctx, a.expectedGovernanceHash(resume), func(ev constitution.TamperEvent) {
		printer.Warn(fmt.Sprintf("governance document changed: %s (the next gate will halt)", ev.Result.Reason))
	})
	defer stopWatch()

	var st *orchestrator.PipelineState
	if resume {
		st, err = exec.Resume(ctx)
	} else {
		st, err = exec.Run(ctx)
	}

	if st != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), renderStatus(st))
	}
	switch {
	case errors.Is(err, orchestrator.ErrStateExists):
		return fmt.Errorf("%w: use 'quorum resume' to continue or 'quorum reset' to start over", err)
	case errors.Is(err, orchestrator.ErrNoState):
		return fmt.Errorf("%w: use 'quorum run' to start one", err)
	case errors.Is(err, context.Canceled):
		a.logger.Info(ctx, "run interrupted; continue with 'quorum resume'")
		return err
	}
	return err
}

// expectedGovernanceHash is the hash the watcher compares against: the
// recorded one when resuming, otherwise the document as it is now.
func (a *app) expectedGovernanceHash(resume bool) string {
	if resume {
		if st, err := a.states.Load(); err == nil {
			return st.ConstitutionHash
		}
		return ""
	}
	h, err := a.governance.Hash()
	if err != nil {
		return ""
	}
	return h
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.states.Load()
	if errors.Is(err, orchestrator.ErrNoState) {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No pipeline has been started. Run: quorum run"))
		return nil
	}
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderStatus(st))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.states.Load()
	switch {
	case errors.Is(err, orchestrator.ErrNoState):
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Nothing to reset."))
		return nil
	case err != nil && !resetForce:
		return fmt.Errorf("%w (use --force to discard it anyway)", err)
	case err == nil && !st.Phase.Terminal() && !resetForce:
		return fmt.Errorf("pipeline %s is in progress at %s; use --force to discard it", st.RunID, st.Phase)
	}

	if err := a.states.Remove(); err != nil {
		return err
	}
	a.logger.Info(cmd.Context(), "pipeline state reset", zap.String("state", a.states.Path()))
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓")+" pipeline state cleared; artifacts kept under "+a.store.Root())
	return nil
}
