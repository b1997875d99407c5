// Package output renders fleetctl results as text tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// Format selects how command results are rendered
type Format string

const (
	// FormatText renders tables and label/value lists
	FormatText Format = "text"
	// FormatJSON renders the API objects as indented JSON
	FormatJSON Format = "json"
)

// Formatter writes command results in one Format
type Formatter struct {
	format Format
	writer io.Writer
}

// New returns a Formatter writing to stdout
func New(format Format) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter redirects output, e.g. to cobra's OutOrStdout
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Writer returns the destination of the formatter
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Output writes data as JSON, or with its default text form
func (f *Formatter) Output(data any) error {
	switch f.format {
	case FormatJSON:
		return f.outputJSON(data)
	case FormatText:
		_, err := fmt.Fprintf(f.writer, "%v\n", data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

func (f *Formatter) outputJSON(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Table writes headers and rows as aligned columns
func (f *Formatter) Table(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// Fields writes label/value pairs, one per line
func (f *Formatter) Fields(pairs [][2]string) error {
	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	for _, p := range pairs {
		fmt.Fprintf(w, "%s:\t%s\n", p[0], p[1])
	}
	return w.Flush()
}

func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

func (f *Formatter) IsText() bool {
	return f.format == FormatText
}

// Timestamp formats t for tables; zero and nil times render as "-"
func Timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// AddFormatFlag registers -o/--output on cmd and its subcommands
func AddFormatFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("output", "o", "text", "Output format (text|json)")
}

// GetFormatFromCmd reads and validates the --output flag
func GetFormatFromCmd(cmd *cobra.Command) (Format, error) {
	flag := cmd.Flag("output")
	if flag == nil {
		return FormatText, fmt.Errorf("command %s has no output flag", cmd.Name())
	}
	formatStr := flag.Value.String()

	format := Format(formatStr)
	switch format {
	case FormatText, FormatJSON:
		return format, nil
	default:
		return FormatText, fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", formatStr)
	}
}
