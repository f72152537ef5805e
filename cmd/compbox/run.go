package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/compbox/compbox/hostbridge"
	"github.com/compbox/compbox/limits"
	"github.com/compbox/compbox/sandbox"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [component.wasm]",
	Short: "Run a component invocation under its declared limits",
	Long: `Execute one exported function of a WebAssembly component inside the
sandbox. Resource limits come from the component manifest (TOML); granted
capabilities come from a grants file (YAML). Both limits and grants apply to
this single invocation only.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("manifest", "", "component manifest (TOML); defaults to <component>.toml next to the binary")
	runCmd.Flags().String("grants", "", "capability grants file (YAML); empty means deny everything")
	runCmd.Flags().String("entry", "run", "exported function to invoke")
	runCmd.Flags().StringSlice("param", nil, "raw u64 parameter (repeatable)")
	runCmd.Flags().Duration("timeout", 0, "override the manifest execution deadline")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	wasmPath := args[0]
	manifestPath, _ := cmd.Flags().GetString("manifest")
	grantsPath, _ := cmd.Flags().GetString("grants")
	entry, _ := cmd.Flags().GetString("entry")
	rawParams, _ := cmd.Flags().GetStringSlice("param")
	timeoutOverride, _ := cmd.Flags().GetDuration("timeout")

	params := make([]uint64, 0, len(rawParams))
	for _, raw := range rawParams {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parameter %q is not a u64: %w", raw, err)
		}
		params = append(params, v)
	}

	if manifestPath == "" {
		manifestPath = strings.TrimSuffix(wasmPath, filepath.Ext(wasmPath)) + ".toml"
	}

	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	manifest, err := limits.ParseManifest(manifestData)
	if err != nil {
		return err
	}
	rl, err := manifest.Limits()
	if err != nil {
		return err
	}
	if timeoutOverride > 0 {
		rl.MaxExecution = timeoutOverride
	}

	caps, err := loadGrants(grantsPath)
	if err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("reading component: %w", err)
	}

	ctx := cmd.Context()
	gatekeeper := hostbridge.NewGatekeeper(hostbridge.NewExprMatcher())
	engine, err := sandbox.NewEngine(ctx, sandbox.WithHostModule(hostbridge.Register(gatekeeper)))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close(ctx)

	name := manifest.Component.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(wasmPath), filepath.Ext(wasmPath))
	}
	component, err := engine.Load(ctx, name, wasmBytes)
	if err != nil {
		return err
	}

	started := time.Now()
	outcome, err := component.Execute(ctx, entry, params, rl, caps)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, outcome)
	if outcome.Success() && len(outcome.Results) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "results: %v\n", outcome.Results)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "memory: %d bytes (peak %d), wall clock: %s\n",
		outcome.Usage.MemoryBytes, outcome.Usage.PeakMemoryBytes, time.Since(started).Round(time.Millisecond))

	if !outcome.Success() {
		os.Exit(1)
	}
	return nil
}
