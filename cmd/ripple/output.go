package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, a ...any) {
	_, _ = successColor.Fprintf(w, "✓ "+format+"\n", a...)
}

func printError(w io.Writer, format string, a ...any) {
	_, _ = errorColor.Fprintf(w, "✗ "+format+"\n", a...)
}

func printInfo(w io.Writer, format string, a ...any) {
	_, _ = infoColor.Fprintf(w, format+"\n", a...)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
