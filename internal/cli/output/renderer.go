// Package output renders command output for terminals, pipes and machines.
//
// A Renderer resolves ModeAuto to styled text on a TTY and to Markdown
// everywhere else, so piped output stays readable in CI logs and PR
// comments.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how output is rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer. An empty or unknown mode means ModeAuto.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with explicit terminal detection.
// Styles stay colorless either way unless out is a real terminal.
func NewRendererWithTTY(out, errOut io.Writer, tty bool, mode Mode) *Renderer {
	switch mode {
	case ModeText, ModeMarkdown, ModeJSON:
	default:
		mode = ModeAuto
	}

	lr := lipgloss.NewRenderer(out)
	if !isTerminal(out) || os.Getenv("NO_COLOR") != "" {
		lr.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  tty,
		styles: NewStyles(lr),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// EffectiveMode resolves ModeAuto against the output writer.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether the output writer is a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the error writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Header writes a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() != ModeText {
		r.Println(FormatHeader(level, text))
		return
	}
	switch level {
	case 1:
		r.Println(r.styles.Header1.Render(text))
	default:
		r.Println(r.styles.Header2.Render(text))
	}
}

// StatusLine writes "name status detail" with a status marker.
func (r *Renderer) StatusLine(name, status, detail string) {
	var marker string
	switch status {
	case "success", "ok":
		marker = r.styles.Success.Render(symbolSuccess)
	case "warning":
		marker = r.styles.Warning.Render(symbolWarning)
	case "error", "failed":
		marker = r.styles.Error.Render(symbolError)
	default:
		marker = r.styles.Muted.Render(symbolPending)
	}
	line := fmt.Sprintf("  %s %s", marker, name)
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(symbolSuccess + " " + msg))
}

// Warning writes a warning message.
func (r *Renderer) Warning(msg string) {
	r.Println(r.styles.Warning.Render(symbolWarning + " " + msg))
}

// Error writes an error message to the error writer.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(symbolError+" "+msg))
}

// Muted writes de-emphasized text.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// FormatHeader returns a Markdown header.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a Markdown list item with a bold key.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}
