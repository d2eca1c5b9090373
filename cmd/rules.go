package cmd

import (
	"fmt"
	"os"

	"complyscan/internal/models"
	"complyscan/internal/rules"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Lists the loaded rule sets and their checks",
	Run: func(cmd *cobra.Command, args []string) {
		rulesDir, _ := cmd.Flags().GetString("rules-dir")

		registry, warnings, err := rules.LoadDirectory(rulesDir)
		if err != nil {
			er(fmt.Sprintf("Error loading rule documents: %v", err))
		}
		for _, warning := range warnings {
			fmt.Fprintln(os.Stderr, warning)
		}

		for _, ruleSet := range registry.All() {
			color.Cyan("%s/%s (%s)", ruleSet.Provider, ruleSet.Service, ruleSet.Scope)
			fmt.Println("  Discoveries:")
			for _, id := range ruleSet.ExecutionOrder() {
				def := ruleSet.Discovery(id)
				if def.ForEach != "" {
					fmt.Printf("    %s (for each %s)\n", id, def.ForEach)
				} else {
					fmt.Printf("    %s\n", id)
				}
			}
			fmt.Println("  Checks:")
			for _, check := range ruleSet.Checks {
				severityColor(check.Severity).Printf("    [%s] ", check.Severity)
				fmt.Printf("%s - %s\n", check.CheckID, check.Title)
			}
			fmt.Println()
		}
	},
}

func severityColor(severity models.Severity) *color.Color {
	switch severity {
	case models.Critical:
		return color.New(color.FgRed, color.Bold)
	case models.High:
		return color.New(color.FgRed)
	case models.Medium:
		return color.New(color.FgYellow)
	case models.Low:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgBlue)
	}
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
