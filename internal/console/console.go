// Package console formats the supervisor and CLI's stderr/stdout
// status lines: success/info/warning/error markers, progress and count
// messages, and path display. Styling is skipped automatically when
// the output stream is not a terminal.
package console

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/githubnext/ace/internal/gailog"
)

var log = gailog.New("ace:console")

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// ToRelativePath converts an absolute path to one relative to the
// current working directory. Paths that can't be made relative, or
// that are already relative, are returned unchanged.
func ToRelativePath(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return path
	}
	return rel
}

// FormatSuccessMessage formats a success status line.
func FormatSuccessMessage(message string) string {
	return render(styleSuccess, "✓ ") + message
}

// FormatInfoMessage formats an informational status line.
func FormatInfoMessage(message string) string {
	return render(styleInfo, "ℹ ") + message
}

// FormatWarningMessage formats a warning status line.
func FormatWarningMessage(message string) string {
	return render(styleWarning, "⚠ ") + message
}

// FormatErrorMessage formats an error status line.
func FormatErrorMessage(message string) string {
	return render(styleError, "✗ ") + message
}

// FormatCountMessage formats a numeric status message, e.g. a count of
// entries ready to mail or hooks currently running.
func FormatCountMessage(message string) string {
	return render(styleInfo, "# ") + message
}

// FormatProgressMessage formats an in-progress activity message, used
// while a hook or workflow is running.
func FormatProgressMessage(message string) string {
	return render(styleMuted, "... ") + message
}

// FormatCommandMessage formats a message describing a shell command
// about to run or that just ran.
func FormatCommandMessage(command string) string {
	return render(styleMuted, "$ ") + command
}

// FormatLocationMessage formats a message naming a file or directory
// path, converting absolute paths to relative ones.
func FormatLocationMessage(message string) string {
	return render(styleMuted, "@ ") + ToRelativePath(message)
}

// FormatErrorWithSuggestions formats an error message followed by a
// bulleted list of suggested remedies.
func FormatErrorWithSuggestions(message string, suggestions []string) string {
	var b strings.Builder
	b.WriteString(FormatErrorMessage(message))
	if len(suggestions) > 0 {
		b.WriteString("\n\nSuggestions:\n")
		for _, s := range suggestions {
			b.WriteString("  • " + s + "\n")
		}
	}
	log.Printf("formatted error with %d suggestion(s)", len(suggestions))
	return b.String()
}

func render(style lipgloss.Style, prefix string) string {
	if !isTTY() {
		return prefix
	}
	return style.Render(prefix)
}
