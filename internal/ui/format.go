package ui

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"sparkify/pkg/errors"
)

var (
	// Output is where all terminal output goes
	Output io.Writer = os.Stdout

	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// DisableColor turns colored output off, e.g. for --no-color or piped output
func DisableColor() {
	supportsColor = false
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	padding := (width - len(title) - 2) / 2
	if padding < 0 {
		padding = 0
	}
	right := width - 2 - padding - len(title)
	if right < 0 {
		right = 0
	}

	fmt.Fprintln(Output, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(Output, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", right),
	)
	fmt.Fprintln(Output, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays a formatted error. Application errors show their code,
// context and suggestions on separate lines.
func ShowError(err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		fmt.Fprintf(Output, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		return
	}

	fmt.Fprintf(Output, "\n%s %s %s\n", ColorError("ERROR:"), ColorDim("["+string(appErr.Code)+"]"), appErr.Message)
	if appErr.Cause != nil {
		fmt.Fprintf(Output, "  %s\n", ColorDim("Caused by: "+firstLine(appErr.Cause.Error())))
	}
	for _, key := range []string{"statement", "table", "sqlstate", "section", "key", "path"} {
		if v, ok := appErr.Context[key]; ok && v != "" {
			fmt.Fprintf(Output, "  %s %v\n", ColorDim(key+":"), v)
		}
	}
	for _, s := range appErr.Suggestions {
		fmt.Fprintf(Output, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorInfo("INFO:"), message)
}

// ShowStep prints one finished statement
func ShowStep(stage, name string, rows int64, d time.Duration, ok bool) {
	mark := ColorSuccess("✓")
	if !ok {
		mark = ColorError("✗")
	}
	fmt.Fprintf(Output, "%s %-8s %-24s %s %s\n",
		mark,
		ColorDim(stage),
		name,
		formatRows(rows),
		ColorDim(formatDuration(d)),
	)
}

func formatRows(rows int64) string {
	if rows == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", rows)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
