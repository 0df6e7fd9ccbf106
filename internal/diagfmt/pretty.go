package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"diaudit/internal/diag"
	"diaudit/internal/source"
)

func init() {
	message.Set(language.English, "errorCount",
		plural.Selectf(1, "%d",
			plural.One, "1 error",
			plural.Other, "%d errors"))
	message.Set(language.English, "warningCount",
		plural.Selectf(1, "%d",
			plural.One, "1 warning",
			plural.Other, "%d warnings"))
}

func (m PathMode) asFormatMode() string {
	switch m {
	case PathModeAbsolute:
		return "absolute"
	case PathModeRelative:
		return "relative"
	case PathModeBasename:
		return "basename"
	default:
		return "auto"
	}
}

func severityColor(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return color.New(color.FgRed, color.Bold)
	case diag.SevWarning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

// Pretty formats bag's diagnostics in a human-readable, optionally
// colorized form, one per primary span (bag.Sort is expected to have been
// called already so output order is deterministic):
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//	    <source line>
//	    <caret underline>
//	    note: <path>:<line>:<col>: <message>   (once per Note, when opts.ShowNotes)
//
// followed by a pluralized summary line ("1 error, 3 warnings"), omitted
// when there are no errors and no warnings.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	if bag == nil || fs == nil {
		return
	}
	noColor := !opts.Color
	for _, d := range bag.Items() {
		writeDiagnostic(w, d, fs, opts, noColor)
	}
	writeSummary(w, bag, noColor)
}

func writeDiagnostic(w io.Writer, d diag.Diagnostic, fs *source.FileSet, opts PrettyOpts, noColor bool) {
	file := fs.Get(d.Primary.File)
	start, _ := fs.Resolve(d.Primary)
	path := file.FormatPath(opts.PathMode.asFormatMode(), fs.BaseDir())

	sevText := d.Severity.String()
	if !noColor {
		sevText = severityColor(d.Severity).Sprint(sevText)
	}
	fmt.Fprintf(w, "%s:%d:%d: %s %s: %s\n", path, start.Line, start.Col, sevText, d.Code.ID(), d.Message)

	if opts.Context >= 0 {
		writeSourceExcerpt(w, file, d.Primary, start, noColor)
	}

	if opts.ShowNotes {
		for _, n := range d.Notes {
			writeNote(w, n, fs, opts)
		}
	}

	if opts.ShowFixes {
		for _, f := range d.Fixes {
			fmt.Fprintf(w, "    fix available: %s\n", f.Title)
		}
	}
}

func writeSourceExcerpt(w io.Writer, file *source.File, span source.Span, start source.LineCol, noColor bool) {
	line := file.GetLine(start.Line)
	if line == "" {
		return
	}
	fmt.Fprintf(w, "    %s\n", line)

	width := runewidth.StringWidth(truncateRunes(line, int(start.Col)-1))
	underlineLen := caretWidth(line, span, start)
	caret := strings.Repeat(" ", width) + strings.Repeat("^", underlineLen)
	if !noColor {
		caret = color.New(color.FgGreen, color.Bold).Sprint(caret)
	}
	fmt.Fprintf(w, "    %s\n", caret)
}

// caretWidth computes how many display columns the span covers on its
// first line, at least 1 so a zero-length span still gets a visible caret.
func caretWidth(line string, span source.Span, start source.LineCol) int {
	n := int(span.Len())
	if n <= 0 {
		return 1
	}
	runes := []rune(line)
	maxRunes := len(runes) - int(start.Col) + 1
	if maxRunes < 1 {
		return 1
	}
	if n > maxRunes {
		n = maxRunes
	}
	width := runewidth.StringWidth(string(runes[int(start.Col)-1 : int(start.Col)-1+n]))
	if width == 0 {
		return 1
	}
	return width
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if n < 0 {
		n = 0
	}
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n])
}

func writeNote(w io.Writer, n diag.Note, fs *source.FileSet, opts PrettyOpts) {
	file := fs.Get(n.Span.File)
	start, _ := fs.Resolve(n.Span)
	path := file.FormatPath(opts.PathMode.asFormatMode(), fs.BaseDir())
	label := "note"
	if !noColorOpt(opts) {
		label = color.New(color.FgBlue).Sprint(label)
	}
	fmt.Fprintf(w, "    %s: %s:%d:%d: %s\n", label, path, start.Line, start.Col, n.Msg)
}

func noColorOpt(opts PrettyOpts) bool { return !opts.Color }

var summaryPrinter = message.NewPrinter(language.English)

func writeSummary(w io.Writer, bag *diag.Bag, noColor bool) {
	errors, warnings := 0, 0
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errors++
		case diag.SevWarning:
			warnings++
		}
	}
	if errors == 0 && warnings == 0 {
		return
	}
	line := fmt.Sprintf("%s, %s\n",
		summaryPrinter.Sprintf("errorCount", errors),
		summaryPrinter.Sprintf("warningCount", warnings))
	if !noColor && errors > 0 {
		line = color.New(color.FgRed, color.Bold).Sprint(line)
	}
	fmt.Fprint(w, line)
}
