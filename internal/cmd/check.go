package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kandev/agentfleet/internal/agent/agents"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which agent CLIs are installed",
	Long:  `Resolve the binary of every supported agent type on PATH and print whether it is available.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := agents.NewRegistry(cfg.Manager.AgentsFile)
	if err != nil {
		return fmt.Errorf("failed to load agent flag table: %w", err)
	}
	return printAvailability(cmd, registry)
}

func printAvailability(cmd *cobra.Command, registry *agents.Registry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tBINARY\tSTATUS\tDETAIL")
	for _, t := range agents.AllTypes {
		p, _ := registry.Get(t)
		ok, detail := registry.CheckCliAvailable(cmd.Context(), t)
		status := "missing"
		if ok {
			status = "available"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t, p.Binary, status, detail)
	}
	return w.Flush()
}
