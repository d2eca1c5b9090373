package engine

import (
	"fmt"
	"os"
)

var (
	EnableDiagnostics = false
)

func logDiagnostic(format string, args ...interface{}) {
	if EnableDiagnostics {
		fmt.Fprintf(os.Stderr, "[DIAG-ENGINE] "+format+"\n", args...)
	}
}
