package config

import (
	"fmt"
	"io"
	"os"
)

var exit = os.Exit

// Exitf writes a formatted error message to stderr and exits with code 1.
// Command entry points use it for unrecoverable startup failures.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, format, args...)
}

func exitf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(1)
}
