// Command memoryengine runs the memory engine's scheduler CLI (§4.10, §6):
// a single consolidation pass (--once) or a long-running ticking scheduler
// (--interval). Grounded on the cobra root-command pattern used across the
// example pack's CLIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"memoryengine/internal/config"
	"memoryengine/internal/engine"
	"memoryengine/internal/observability"
)

// Exit codes per §6: 0 success, 1 operational failure, 2 configuration error.
const (
	exitSuccess = 0
	exitFailure = 1
	exitConfig  = 2
)

// configError marks a failure as a configuration problem rather than an
// operational one, so run() can pick the right exit code (§6).
type configError struct{ error }

func main() {
	os.Exit(run())
}

func run() int {
	observability.InitLogger("", config.LogLevel())
	shutdownTracing := observability.InitTracing()
	defer shutdownTracing(context.Background())

	var once bool
	var intervalSeconds int

	consolidateCmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run the Consolidation worker: a single pass (--once) or on a timer (--interval)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(cmd.Context(), once, intervalSeconds)
		},
	}
	consolidateCmd.Flags().BoolVar(&once, "once", false, "run a single consolidation pass and exit")
	consolidateCmd.Flags().IntVar(&intervalSeconds, "interval", 0, "seconds between consolidation passes (long-running mode)")

	root := &cobra.Command{
		Use:   "memoryengine",
		Short: "Three-tier memory engine scheduler",
	}
	root.AddCommand(consolidateCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "memoryengine:", err)
		var cfgErr *configError
		if asConfigError(err, &cfgErr) {
			return exitConfig
		}
		return exitFailure
	}
	return exitSuccess
}

func asConfigError(err error, target **configError) bool {
	ce, ok := err.(*configError)
	if ok {
		*target = ce
	}
	return ok
}

func runConsolidate(ctx context.Context, once bool, intervalSeconds int) error {
	if !once && intervalSeconds <= 0 {
		return &configError{fmt.Errorf("specify --once or --interval N")}
	}
	if config.DatabaseURL() == "" {
		return &configError{fmt.Errorf("DATABASE_URL is not set")}
	}
	if intervalSeconds > 0 {
		// config.ConsolidationIntervalSeconds reads this env var lazily at
		// call time (never at import time), so setting it here before
		// Initialize is equivalent to the operator having exported it.
		os.Setenv("CONSOLIDATION_INTERVAL_SECONDS", strconv.Itoa(intervalSeconds))
	}

	e := engine.New()
	if once {
		// Initialize also starts the background scheduler, whose first tick
		// comes one full interval after start. The pass below runs
		// synchronously, and the deferred Close stops the scheduler on return.
		if err := e.Initialize(ctx); err != nil {
			return err
		}
		defer e.Close()
		return e.RunConsolidationOnce(ctx)
	}

	if err := e.Initialize(ctx); err != nil {
		return err
	}
	defer e.Close()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return nil
}
