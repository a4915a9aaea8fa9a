package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteJSON encodes the report with indentation.
func WriteJSON(w io.Writer, rep *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteText renders the offsets and every section as aligned tables.
func WriteText(w io.Writer, rep *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "root: %s\n\n", rep.Root)
	fmt.Fprintln(tw, "== Offsets ==")
	fmt.Fprintln(tw, "VERSION\tSCALE\tSECONDS\tSOURCE")
	for _, entry := range rep.Offsets {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\n", entry.Cell.Version, entry.Cell.Scale, entry.Seconds, entry.Source)
	}

	for _, section := range rep.Sections {
		fmt.Fprintf(tw, "\n== %s (%s) ==\n", section.Label(), section.Column)
		fmt.Fprintln(tw, "VERSION\tSCALE\tMEAN\tSTDDEV\tSAMPLES")
		for _, cell := range section.ByCell {
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%d\n", cell.Version, cell.Scale, cell.Mean, cell.StdDev, cell.Count)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "VERSION\tSCALE\tTRIAL\tMEAN\tSTDDEV\tSAMPLES")
		for _, tr := range section.ByTrial {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%d\n", tr.Version, tr.Scale, tr.Trial, tr.Mean, tr.StdDev, tr.Count)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
