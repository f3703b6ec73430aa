package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"example.com/klvgate/internal/store"
)

// AbsentMarker fills CSV cells for fields a frame does not carry. A present
// empty string stays an empty cell.
const AbsentMarker = "NULL"

func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteCSV writes one row per frame. Columns are frame_number followed by
// every field present in at least one frame, in lexicographic order.
func WriteCSV(w io.Writer, s *store.Store) error {
	cols := s.PresentFields()
	cw := csv.NewWriter(w)
	header := append([]string{"frame_number"}, cols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, f := range s.Frames() {
		row[0] = strconv.Itoa(f.Index)
		for i, name := range cols {
			if v, ok := f.Mapping.Get(name); ok {
				row[i+1] = v.String()
			} else {
				row[i+1] = AbsentMarker
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteText(w io.Writer, rep Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "KLV analysis report %s\n", rep.ID)
	if rep.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", rep.Source)
	}
	fmt.Fprintf(&b, "Generated: %s\n", rep.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Frames: %d\n", rep.FrameCount)
	if len(rep.Failures) > 0 {
		fmt.Fprintf(&b, "Failed frames: %d\n", len(rep.Failures))
	}
	fmt.Fprintf(&b, "Fields present (%d): %s\n", len(rep.FieldsPresent), joinOrDash(rep.FieldsPresent))
	fmt.Fprintf(&b, "Fields missing (%d): %s\n", len(rep.FieldsMissing), joinOrDash(rep.FieldsMissing))
	fmt.Fprintf(&b, "Matched patterns: %s\n", joinOrDash(rep.MatchedTemplates))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(rep.FieldsPresent) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\nFIELD\tPRESENT\tMIN\tMAX\tMEAN\tFLAGS")
		for _, name := range rep.FieldsPresent {
			fs := rep.FieldStats[name]
			min, max, mean := "-", "-", "-"
			if fs.Summary != nil {
				min = formatNumber(fs.Summary.Min)
				max = formatNumber(fs.Summary.Max)
				mean = formatNumber(fs.Summary.Mean)
			}
			fmt.Fprintf(tw, "%s\t%.0f%%\t%s\t%s\t%s\t%s\n", name, fs.PresentRatio*100, min, max, mean, flags(fs.HasDiscontinuities, fs.HasOutOfRange))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(rep.Anomalies) == 0 {
		_, err := io.WriteString(w, "\nNo anomalies.\n")
		return err
	}
	if _, err := io.WriteString(w, "\nAnomalies:\n"); err != nil {
		return err
	}
	for _, a := range rep.Anomalies {
		if _, err := fmt.Fprintf(w, "  - %s\n", a); err != nil {
			return err
		}
	}
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func flags(jump, outOfRange bool) string {
	var parts []string
	if jump {
		parts = append(parts, "jump")
	}
	if outOfRange {
		parts = append(parts, "range")
	}
	return joinOrDash(parts)
}
