package cmd

import (
	"fmt"
	"os"

	"complyscan/internal/utils"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "complyscan",
	Short: "Complyscan - declarative multi-cloud compliance scanner",
	Long: `Complyscan executes YAML rule documents against live cloud accounts.
Every rule document inventories one service (discovery) and evaluates
pass/fail conditions against that inventory (checks).`,
}

func Execute() error {
	utils.DisplayBanner()

	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("profile", "p", "", "Cloud credentials profile")
	rootCmd.PersistentFlags().String("rules-dir", "rules", "Directory with rule documents")
}

func er(msg interface{}) {
	fmt.Println("Error:", msg)
	os.Exit(1)
}
