// Package report renders workspace summaries for people and machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/workspace"
)

// Format selects the output encoding.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Tag prefixes every human-readable message.
const Tag = "[monokit]"

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Printer writes summaries to one destination.
type Printer struct {
	w      io.Writer
	format Format

	errTag  *color.Color
	warnTag *color.Color
	okTag   *color.Color
	added   *color.Color
	removed *color.Color
}

// NewPrinter creates a printer. Colors are only emitted for text output
// when useColor is set.
func NewPrinter(w io.Writer, format Format, useColor bool) *Printer {
	p := &Printer{
		w:       w,
		format:  format,
		errTag:  color.New(color.FgRed, color.Bold),
		warnTag: color.New(color.FgMagenta, color.Bold),
		okTag:   color.New(color.FgGreen),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
	}

	for _, c := range []*color.Color{p.errTag, p.warnTag, p.okTag, p.added, p.removed} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

// Lint prints a dependency audit. Machine formats carry only the errors
// and warnings.
func (p *Printer) Lint(summary workspace.LintSummary) error {
	if p.format != FormatText {
		return p.encode(depcheck.Result{
			Errors: nonNil(summary.Errors),
			Warns:  nonNil(summary.Warns),
		})
	}

	for _, msg := range summary.Warns {
		p.line(p.warnTag, "WARN", msg)
	}

	for _, msg := range summary.Errors {
		p.line(p.errTag, "ERR", msg)
	}

	p.failures(summary.Failures)

	tbl := p.table("Package", "Files", "Parse failures", "Errors", "Warnings", "Time")

	for _, pkg := range summary.Packages {
		tbl.AppendRow(table.Row{
			pkg.Package,
			humanize.Comma(int64(pkg.Files)),
			len(pkg.ParseFailures),
			len(pkg.Errors),
			len(pkg.Warns),
			pkg.Duration.Round(time.Millisecond),
		})
	}

	tbl.AppendFooter(table.Row{english.Plural(len(summary.Packages), "package", ""), "", "", len(summary.Errors), len(summary.Warns), ""})

	fmt.Fprintln(p.w, tbl.Render())

	if !summary.Drift() {
		p.okTag.Fprintf(p.w, "%s no dependency drift\n", Tag)
	}

	return nil
}

// Build prints an export-map build.
func (p *Printer) Build(summary workspace.BuildSummary) error {
	if p.format != FormatText {
		return p.encode(summary)
	}

	for _, pkg := range summary.Packages {
		for _, v := range pkg.Violations {
			p.line(p.warnTag, "WARN", pkg.Package+": "+v)
		}

		p.diff(pkg.Diff)
	}

	p.failures(summary.Failures)

	tbl := p.table("Package", "Exports", "Deleted", "Time")

	for _, pkg := range summary.Packages {
		if pkg.Skipped {
			tbl.AppendRow(table.Row{pkg.Package, "skipped", "", ""})

			continue
		}

		tbl.AppendRow(table.Row{pkg.Package, len(pkg.Exports), len(pkg.Deleted), pkg.Duration.Round(time.Millisecond)})
	}

	fmt.Fprintln(p.w, tbl.Render())

	return nil
}

// Packages prints the discovered workspace members.
func (p *Printer) Packages(pkgs []workspace.Package) error {
	if p.format != FormatText {
		return p.encode(pkgs)
	}

	tbl := p.table("Name", "Path", "Build")

	for _, pkg := range pkgs {
		build := "yes"
		if pkg.SkipBuild {
			build = "skipped"
		}

		tbl.AppendRow(table.Row{pkg.Name, pkg.Rel, build})
	}

	tbl.AppendFooter(table.Row{english.Plural(len(pkgs), "package", ""), "", ""})

	fmt.Fprintln(p.w, tbl.Render())

	return nil
}

// Removed prints the paths deleted by clean.
func (p *Printer) Removed(paths []string) error {
	if p.format != FormatText {
		return p.encode(map[string][]string{"removed": nonNil(paths)})
	}

	for _, path := range paths {
		fmt.Fprintf(p.w, "%s removed %s\n", Tag, path)
	}

	if len(paths) == 0 {
		fmt.Fprintf(p.w, "%s nothing to clean\n", Tag)
	}

	return nil
}

func (p *Printer) line(tag *color.Color, level, msg string) {
	tag.Fprintf(p.w, "%s %s", Tag, level)
	fmt.Fprintf(p.w, " %s\n", msg)
}

func (p *Printer) failures(failures []workspace.Failure) {
	for _, f := range failures {
		p.line(p.errTag, "ERR", f.Package+": "+f.Error)
	}
}

func (p *Printer) diff(body string) {
	for _, line := range strings.SplitAfter(body, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(p.w, line)
		case strings.HasPrefix(line, "+"):
			p.added.Fprint(p.w, line)
		case strings.HasPrefix(line, "-"):
			p.removed.Fprint(p.w, line)
		default:
			fmt.Fprint(p.w, line)
		}
	}
}

func (p *Printer) table(header ...any) table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.AppendHeader(header)

	return tbl
}

func (p *Printer) encode(v any) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	case FormatText:
		return fmt.Errorf("%w: text has no encoder", ErrUnknownFormat)
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
