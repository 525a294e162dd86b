// -- cmd/skills.go --
package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/taskpilot/internal/memory"
	"github.com/xkilldash9x/taskpilot/internal/observability"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skills learned from past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		path, err := appCfg.Agent().ResolveMemoryPath()
		if err != nil {
			return err
		}
		store, err := memory.Open(path, logger)
		if err != nil {
			return fmt.Errorf("opening memory store: %w", err)
		}
		defer store.Close()

		skills := store.Skills()
		if len(skills) == 0 {
			fmt.Println("No skills learned yet.")
			return nil
		}
		sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
		for _, s := range skills {
			fmt.Printf("%-24s domain=%-20s success=%.0f%% uses=%d steps=%d\n",
				s.Name, s.Domain, s.SuccessRate*100, s.TimesUsed, len(s.Template.Steps))
		}
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set-pref <key> <value>",
	Short: "Store a persistent preference used during planning",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		path, err := appCfg.Agent().ResolveMemoryPath()
		if err != nil {
			return err
		}
		store, err := memory.Open(path, logger)
		if err != nil {
			return fmt.Errorf("opening memory store: %w", err)
		}
		defer store.Close()
		return store.SetPreference(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(prefsSetCmd)
}
