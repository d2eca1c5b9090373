package report

import (
	"fmt"
	"sort"

	"complyscan/internal/models"

	"github.com/fatih/color"
)

// DisplaySummary formats and prints the scan summary
func DisplaySummary(summary Summary) {
	fmt.Println("============================================")
	fmt.Println("          COMPLYSCAN SCAN RESULTS           ")
	fmt.Println("============================================")
	fmt.Println()

	fmt.Printf("Scopes scanned: %d\n", summary.Scopes)
	fmt.Printf("Total check records: %d\n", summary.TotalRecords)
	fmt.Println()

	passColor := color.New(color.FgGreen)
	failColor := color.New(color.FgRed, color.Bold)
	errorColor := color.New(color.FgYellow)
	skipColor := color.New(color.FgCyan)

	passColor.Printf("PASS:  %d\n", summary.ByStatus[models.StatusPass])
	failColor.Printf("FAIL:  %d\n", summary.ByStatus[models.StatusFail])
	errorColor.Printf("ERROR: %d\n", summary.ByStatus[models.StatusError])
	skipColor.Printf("SKIP:  %d\n", summary.ByStatus[models.StatusSkip])
	fmt.Println()

	if summary.ByStatus[models.StatusFail] == 0 && summary.ByStatus[models.StatusError] == 0 {
		color.Green("✅ No failing checks. All scanned resources comply with the loaded rules.")
		return
	}

	fmt.Println("Failures by severity:")
	criticalColor := color.New(color.FgRed, color.Bold)
	highColor := color.New(color.FgRed)
	mediumColor := color.New(color.FgYellow)
	lowColor := color.New(color.FgCyan)
	infoColor := color.New(color.FgBlue)

	criticalColor.Printf("  CRITICAL: %d\n", summary.BySeverity[models.Critical])
	highColor.Printf("  HIGH:     %d\n", summary.BySeverity[models.High])
	mediumColor.Printf("  MEDIUM:   %d\n", summary.BySeverity[models.Medium])
	lowColor.Printf("  LOW:      %d\n", summary.BySeverity[models.Low])
	infoColor.Printf("  INFO:     %d\n", summary.BySeverity[models.Info])
	fmt.Println()

	if len(summary.ByCheck) > 0 {
		fmt.Println("Failures by check:")
		checkIDs := make([]string, 0, len(summary.ByCheck))
		for id := range summary.ByCheck {
			checkIDs = append(checkIDs, id)
		}
		sort.Strings(checkIDs)
		for _, id := range checkIDs {
			fmt.Printf("  %s: %d\n", id, summary.ByCheck[id])
		}
	}
}
