package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"complyscan/internal/aws"
	"complyscan/internal/engine"
	"complyscan/internal/exceptions"
	"complyscan/internal/models"
	"complyscan/internal/orchestrator"
	"complyscan/internal/report"
	"complyscan/internal/rules"

	"github.com/spf13/cobra"
)

var (
	outputDir         string
	exceptionsFile    string
	enableDiagnostics bool

	includeAccounts []string
	excludeAccounts []string
	includeRegions  []string
	excludeRegions  []string
	includeServices []string
	excludeServices []string
	includeChecks   []string
	excludeChecks   []string

	accountWorkers int
	serviceWorkers int
	regionWorkers  int
	leafTimeout    time.Duration
	retries        int
	pageLimit      int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scans cloud accounts against the loaded rule documents",
	Long: `Scans every discovered account, region and service against the rule
documents in the rules directory, writing per-scope inventory and check
records as JSON. Exits non-zero when any check fails or errors.`,
	Run: func(cmd *cobra.Command, args []string) {
		profile, _ := cmd.Flags().GetString("profile")
		rulesDir, _ := cmd.Flags().GetString("rules-dir")

		if enableDiagnostics {
			engine.EnableDiagnostics = true
			aws.EnableDiagnostics = true
			orchestrator.EnableDiagnostics = true
			fmt.Println("Diagnostic mode enabled. Detailed logs will be written to stderr.")
		}

		registry, warnings, err := rules.LoadDirectory(rulesDir)
		if err != nil {
			er(fmt.Sprintf("Error loading rule documents: %v", err))
		}
		for _, warning := range warnings {
			fmt.Fprintln(os.Stderr, warning)
		}
		fmt.Printf("Loaded %d rule sets from %s\n", len(registry.All()), rulesDir)

		var exceptionRules []models.ExceptionRule
		if exceptionsFile != "" {
			exceptionRules, err = exceptions.LoadFromFile(exceptionsFile)
			if err != nil {
				er(fmt.Sprintf("Error loading exceptions: %v", err))
			}
			fmt.Printf("Loaded %d exceptions from %s\n", len(exceptionRules), exceptionsFile)
		}

		sink, err := report.NewDirSink(outputDir)
		if err != nil {
			er(fmt.Sprintf("Error preparing output directory: %v", err))
		}

		orch := &orchestrator.Orchestrator{
			Registry:   registry,
			Scopes:     aws.NewScopeDiscoverer(profile),
			Clients:    aws.NewFactory(profile),
			Exceptions: exceptions.NewFilter(exceptionRules),
			Sink:       sink,
			Config: orchestrator.Config{
				AccountWorkers:  accountWorkers,
				ServiceWorkers:  serviceWorkers,
				RegionWorkers:   regionWorkers,
				LeafTimeout:     leafTimeout,
				Retries:         retries,
				PageLimit:       pageLimit,
				IncludeAccounts: includeAccounts,
				ExcludeAccounts: excludeAccounts,
				IncludeRegions:  includeRegions,
				ExcludeRegions:  excludeRegions,
				IncludeServices: includeServices,
				ExcludeServices: excludeServices,
				IncludeChecks:   includeChecks,
				ExcludeChecks:   excludeChecks,
			},
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Starting scan...")
		stats, err := orch.Run(ctx)
		if err != nil {
			er(fmt.Sprintf("Scan failed: %v", err))
		}
		fmt.Printf("Scanned %d accounts, %d leaf scopes (%d scope errors)\n",
			stats.Accounts, stats.Leaves, stats.ScopeErrors)
		fmt.Printf("Results written to %s\n", outputDir)
		fmt.Println()

		summary := sink.Summary()
		report.DisplaySummary(summary)

		if summary.ByStatus[models.StatusFail] > 0 || summary.ByStatus[models.StatusError] > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&outputDir, "output", "scan-results", "Directory for per-scope JSON results")
	scanCmd.Flags().StringVar(&exceptionsFile, "exceptions", "", "Path to a YAML exceptions document")
	scanCmd.Flags().BoolVar(&enableDiagnostics, "diagnostics", false, "Enable diagnostic output for debugging")

	scanCmd.Flags().StringSliceVar(&includeAccounts, "accounts", nil, "Only scan these accounts (id or name, glob ok)")
	scanCmd.Flags().StringSliceVar(&excludeAccounts, "exclude-accounts", nil, "Skip these accounts")
	scanCmd.Flags().StringSliceVar(&includeRegions, "regions", nil, "Only scan these regions")
	scanCmd.Flags().StringSliceVar(&excludeRegions, "exclude-regions", nil, "Skip these regions")
	scanCmd.Flags().StringSliceVar(&includeServices, "services", nil, "Only scan these services")
	scanCmd.Flags().StringSliceVar(&excludeServices, "exclude-services", nil, "Skip these services")
	scanCmd.Flags().StringSliceVar(&includeChecks, "checks", nil, "Only report these check ids")
	scanCmd.Flags().StringSliceVar(&excludeChecks, "exclude-checks", nil, "Skip these check ids")

	scanCmd.Flags().IntVar(&accountWorkers, "account-workers", 0, "Concurrent accounts (default 4)")
	scanCmd.Flags().IntVar(&serviceWorkers, "service-workers", 0, "Concurrent services per account (default 4)")
	scanCmd.Flags().IntVar(&regionWorkers, "region-workers", 0, "Concurrent regions per service (default 8)")
	scanCmd.Flags().DurationVar(&leafTimeout, "leaf-timeout", 0, "Deadline per account+service+region pass (default 5m)")
	scanCmd.Flags().IntVar(&retries, "retries", 0, "Retries for throttled calls (default 3)")
	scanCmd.Flags().IntVar(&pageLimit, "page-limit", 0, "Safety cap on followed response pages (default 20)")
}
