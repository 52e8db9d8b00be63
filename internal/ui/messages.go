package ui

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// quietMode suppresses non-essential output when set.
var quietMode bool

// styled reports whether output should carry ANSI styling.
var styled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// SetQuietMode toggles suppression of non-essential output.
func SetQuietMode(quiet bool) {
	quietMode = quiet
}

// render applies a style only when stdout is a terminal.
func render(style interface{ Render(...string) string }, msg string) string {
	if !styled {
		return msg
	}
	return style.Render(msg)
}

// Println prints an empty line.
func Println() {
	if quietMode {
		return
	}
	fmt.Println()
}

// PrintSuccess prints a success message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintSuccess(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(render(SuccessStyle, "✓ "+msg))
}

// PrintError prints an error message. Not suppressed by quiet mode.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(render(ErrorStyle, "✗ "+msg))
}

// PrintWarning prints a warning message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintWarning(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(render(WarningStyle, "⚠ "+msg))
}

// PrintInfo prints an informational message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintInfo(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(render(InfoStyle, msg))
}

// PrintDim prints a dimmed message.
//
// Parameters:
//   - format: Printf format string
//   - args: Printf arguments
func PrintDim(format string, args ...interface{}) {
	if quietMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(render(DimStyle, msg))
}

// PrintLink prints a labelled URL.
//
// Parameters:
//   - label: Display label
//   - url: The URL
func PrintLink(label, url string) {
	if quietMode {
		return
	}
	fmt.Printf("%s: %s\n", render(InfoStyle, label), render(LinkStyle, url))
}
