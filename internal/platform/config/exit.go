package config

import (
	"fmt"
	"io"
	"os"
)

// Exitf reports a fatal startup problem on stderr and terminates with status 1.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, os.Exit, format, args...)
}

func exitf(w io.Writer, exit func(int), format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(1)
}
