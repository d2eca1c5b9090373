package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"complyscan/internal/exceptions"
	"complyscan/internal/rules"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var validateExceptionsFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validates rule and exception documents without scanning",
	Long: `Validates every rule document in the rules directory (and optionally an
exceptions document) offline. Structural problems that would otherwise fail
mid-scan are reported here, before any network call.`,
	Run: func(cmd *cobra.Command, args []string) {
		rulesDir, _ := cmd.Flags().GetString("rules-dir")

		entries, err := os.ReadDir(rulesDir)
		if err != nil {
			er(fmt.Sprintf("Could not read rules directory: %v", err))
		}

		failures := 0
		checked := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			checked++

			ruleSet, err := rules.LoadRuleSetFromFile(filepath.Join(rulesDir, entry.Name()))
			if err != nil {
				color.Red("✗ %s: %v", entry.Name(), err)
				failures++
				continue
			}
			color.Green("✓ %s (%s/%s: %d discoveries, %d checks)",
				entry.Name(), ruleSet.Provider, ruleSet.Service,
				len(ruleSet.Discoveries), len(ruleSet.Checks))
		}

		if validateExceptionsFile != "" {
			checked++
			exceptionRules, err := exceptions.LoadFromFile(validateExceptionsFile)
			if err != nil {
				color.Red("✗ %s: %v", validateExceptionsFile, err)
				failures++
			} else {
				color.Green("✓ %s (%d exceptions)", validateExceptionsFile, len(exceptionRules))
			}
		}

		fmt.Println()
		if failures > 0 {
			er(fmt.Sprintf("%d of %d documents failed validation", failures, checked))
		}
		fmt.Printf("All %d documents are valid.\n", checked)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateExceptionsFile, "exceptions", "", "Path to a YAML exceptions document to validate")
}
