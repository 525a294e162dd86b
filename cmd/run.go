// -- cmd/run.go --
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/agent"
	"github.com/xkilldash9x/taskpilot/internal/browser/session"
	"github.com/xkilldash9x/taskpilot/internal/humanoid"
	"github.com/xkilldash9x/taskpilot/internal/memory"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/osinput"
)

var (
	runDomain    string
	runScope     string
	runMaxSteps  int
	runNoConfirm bool
	runYes       bool
	runHeadful   bool
	runJSON      bool
)

var runCmd = &cobra.Command{
	Use:   "run \"<goal>\"",
	Short: "Execute a goal against a website",
	Long: `Run plans the given goal, opens a browser session, and executes the plan
step by step with recovery. The structured execution report is printed when
the run finishes, whether it succeeded or not.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGoal(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVarP(&runDomain, "domain", "d", "", "target domain (e.g. example.com)")
	runCmd.Flags().StringVarP(&runScope, "scope", "s", "", "permission scope: read, write, submit or payment")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "override the step budget")
	runCmd.Flags().BoolVar(&runNoConfirm, "no-confirm", false, "skip confirmation prompts for sensitive actions")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "auto-approve confirmation prompts")
	runCmd.Flags().BoolVar(&runHeadful, "headful", false, "run the browser with a visible window")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runGoal(parent context.Context, goal string) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := appCfg
	if runMaxSteps > 0 {
		cfg.SetAgentMaxSteps(runMaxSteps)
	}
	if runNoConfirm {
		cfg.SetAgentConfirmationRequired(false)
	}
	if runHeadful {
		cfg.SetBrowserHeadless(false)
	}
	scope := cfg.Agent().DefaultScope
	if runScope != "" {
		scope = schemas.PermissionScope(strings.ToLower(runScope))
	}

	opts := []agent.Option{}

	memPath, err := cfg.Agent().ResolveMemoryPath()
	if err == nil {
		if store, serr := memory.Open(memPath, logger); serr == nil {
			defer store.Close()
			opts = append(opts, agent.WithMemory(store))
		} else {
			logger.Warn("Running without durable memory", zap.Error(serr))
		}
	} else {
		logger.Warn("Running without durable memory", zap.Error(err))
	}

	// A browser that fails to start degrades the run, it does not end it.
	sess, err := session.NewSession(ctx, cfg.Browser(), logger)
	if err != nil {
		logger.Warn("Browser unavailable; degrading to OS-level input", zap.Error(err))
		device := osinput.NewFailSafeGuard(osinput.NewMemoryDevice(0, 0), 0)
		opts = append(opts,
			agent.WithScreenshotter(device),
			agent.WithHumanoid(
				humanoid.New(cfg.Browser().Humanoid, osinput.NewDispatcher(device), logger)))
	} else {
		defer sess.Close()
		opts = append(opts, agent.WithDriver(sess))
		if cfg.Browser().Humanoid.Enabled {
			opts = append(opts, agent.WithHumanoid(
				humanoid.New(cfg.Browser().Humanoid, sess.Dispatcher(), logger)))
		}
	}

	if runYes {
		opts = append(opts, agent.WithConfirmation(approveAll))
	} else if !runNoConfirm {
		opts = append(opts, agent.WithConfirmation(promptTerminal))
	}

	sessAgent := agent.NewSession(cfg, logger, opts...)
	report := sessAgent.Execute(ctx, goal, runDomain, scope)
	printReport(report)

	if !report.Success {
		return fmt.Errorf("run %s did not succeed (rate %.0f%%)", report.ExecutionID, report.SuccessRate*100)
	}
	return nil
}

// approveAll is the --yes confirmation channel.
func approveAll(ctx context.Context, action string, details map[string]string) (bool, error) {
	return true, nil
}

// promptTerminal asks the operator on stdin before a sensitive action runs.
func promptTerminal(ctx context.Context, action string, details map[string]string) (bool, error) {
	fmt.Printf("Confirm %s on %q? [y/N]: ", action, details["target"])
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printReport(report *schemas.ExecutionReport) {
	if runJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Println(string(out))
			return
		}
	}
	status := "FAILED"
	if report.Success {
		status = "OK"
	} else if report.Aborted {
		status = "ABORTED (" + report.AbortReason + ")"
	}
	fmt.Printf("\nExecution %s: %s\n", report.ExecutionID, status)
	fmt.Printf("  steps executed: %d  failed: %d  recoveries: %d  rate: %.0f%%\n",
		report.StepsExecuted, report.StepsFailed, report.RecoveryAttempts, report.SuccessRate*100)
	for _, entry := range report.ExecutionLog {
		mark := "x"
		if entry.Result.Success {
			mark = "+"
		}
		if entry.Recovered {
			mark = "~"
		}
		fmt.Printf("  [%s] %2d %-18s %s\n", mark, entry.StepIndex, entry.Action, entry.Result.Detail+entry.Result.Error)
	}
	for _, r := range report.Reasoning {
		fmt.Printf("  reasoning: %s\n", r)
	}
}
