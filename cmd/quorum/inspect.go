package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
)

var checkTypes = []checks.Type{
	checks.TypeBuild,
	checks.TypeTest,
	checks.TypeLint,
	checks.TypeTypecheck,
	checks.TypeMigration,
	checks.TypeStart,
	checks.TypeEnv,
	checks.TypePlaceholder,
	checks.TypeSecrets,
}

func init() {
	rootCmd.AddCommand(verifyCmd, snapshotCmd, checkCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hash the governance document and every stored artifact",
	Long: `Verify compares the governance document against the hash recorded at
intake and re-hashes every artifact in the store against its manifest.
It exits non-zero when anything has been modified.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the repository snapshot as JSON",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

var checkCmd = &cobra.Command{
	Use:   "check <type>",
	Short: "Run one gate check against the project",
	Long: fmt.Sprintf(`Run one check exactly as a gate would, with commands resolved from the
repository snapshot and the checks section of the config.

Types: %s`, joinTypes(checkTypes)),
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		out := make([]string, 0, len(checkTypes))
		for _, t := range checkTypes {
			out = append(out, string(t))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runCheck,
}

// errVerifyFailed marks a verify run that found tampering.
var errVerifyFailed = errors.New("verification failed")

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	failed := false

	st, err := a.states.Load()
	switch {
	case errors.Is(err, orchestrator.ErrNoState):
		fmt.Fprintln(out, dimStyle.Render("- governance: no pipeline state, nothing recorded"))
	case err != nil:
		return err
	default:
		res := a.governance.Verify(st.ConstitutionHash)
		if res.Valid {
			fmt.Fprintln(out, okStyle.Render("✓")+" governance: "+a.governance.Path())
		} else {
			failed = true
			fmt.Fprintln(out, errorStyle.Render("✗")+" governance: "+res.Reason)
		}
	}

	failures, err := a.store.Verify(ctx)
	if err != nil {
		return err
	}
	total := len(a.store.List(""))
	if len(failures) == 0 {
		fmt.Fprintf(out, "%s artifacts: %d verified\n", okStyle.Render("✓"), total)
	} else {
		failed = true
		fmt.Fprintf(out, "%s artifacts: %d of %d failed\n", errorStyle.Render("✗"), len(failures), total)
		for _, f := range failures {
			fmt.Fprintln(out, "  "+f.Error())
		}
	}

	if failed {
		return fmt.Errorf("%w: %w", orchestrator.ErrIntegrity, errVerifyFailed)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.snapshots().Generate(ctx, a.dir)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	typ := checks.Type(args[0])
	if !slices.Contains(checkTypes, typ) {
		return fmt.Errorf("unknown check type %q (want one of %s)", args[0], joinTypes(checkTypes))
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var res *checks.Result
	switch typ {
	case checks.TypeEnv:
		res, _ = checks.CheckEnv(a.dir, a.cfg.Checks.EnvExample, a.cfg.Checks.EnvFile)
	case checks.TypePlaceholder:
		res = checks.ScanPlaceholders(ctx, a.dir, a.cfg.Checks.PlaceholderDirs, checks.Allowlist(a.cfg.Checks.Allowlist))
	case checks.TypeSecrets:
		scanner, err := checks.NewSecretScanner()
		if err != nil {
			return err
		}
		res = scanner.ScanSecrets(ctx, a.dir)
	default:
		snap, err := a.snapshots().Generate(ctx, a.dir)
		if err != nil {
			return err
		}
		command := commands.Resolve(snap, commands.FromConfig(a.cfg.Checks)).For(typ)
		runner := a.checkRunner(nil)
		if typ == checks.TypeStart {
			res = runner.RunStart(ctx, command, a.dir, 0)
		} else {
			res = runner.Run(ctx, typ, command, a.dir, 0)
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), renderCheck(res))
	if !res.Passed() {
		return res.Err()
	}
	return nil
}

func joinTypes(types []checks.Type) string {
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = string(t)
	}
	return strings.Join(s, ", ")
}
