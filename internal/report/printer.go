package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Printer writes formatted output to a target writer.
// Construct one via NewPrinter.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer that writes to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Println writes a line terminated with \n.
func (p *Printer) Println(args ...interface{}) {
	fmt.Fprintln(p.w, args...)
}

// Printf writes a formatted string.
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// Table renders tabular data.
// headers is the column header slice; rows is a slice of string slices.
func (p *Printer) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// JSON marshals v and writes it as indented JSON.
func (p *Printer) JSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(p.w, string(b))
	return nil
}

// YAML marshals v and writes it as a YAML document.
func (p *Printer) YAML(v interface{}) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Header writes a section header (uppercase, underlined).
func (p *Printer) Header(title string) {
	fmt.Fprintln(p.w, strings.ToUpper(title))
	fmt.Fprintln(p.w, strings.Repeat("─", len(title)))
}

// Success writes a success message prefixed with ✓.
func (p *Printer) Success(msg string, args ...interface{}) {
	fmt.Fprintf(p.w, "✓ "+msg+"\n", args...)
}

// Warning writes a warning message prefixed with ⚠.
func (p *Printer) Warning(msg string, args ...interface{}) {
	fmt.Fprintf(p.w, "⚠ "+msg+"\n", args...)
}
