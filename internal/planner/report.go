package planner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Labels returns the annotations the details report prints for e.
func (e Entry) Labels() []string {
	if e.Missing {
		return []string{"missing"}
	}
	var labels []string
	if e.Active {
		labels = append(labels, "active")
	}
	if e.Original {
		labels = append(labels, "original")
	}
	if len(labels) == 0 {
		if e.Kept {
			labels = append(labels, "kept")
		} else {
			labels = append(labels, "deleted")
		}
	}
	if e.RelinkTo != "" {
		labels = append(labels, "relinked -> "+e.RelinkTo)
	}
	return labels
}

// WriteDetails renders the advisory details report: one block per branch
// listing its lineage, then the skipped re-links and a summary.
func WriteDetails(w io.Writer, r *Result) error {
	p := message.NewPrinter(language.English)

	for _, l := range r.Lineages {
		b := l.Branch
		header := fmt.Sprintf("Active Version %s [%s]", b.ActiveVersionID, b.Name)
		if b.Key != "" {
			header += " " + b.Key
		}
		if !b.EditedOn.IsZero() {
			header += " edited " + b.EditedOn.UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}

		width := 0
		for _, e := range l.Entries {
			width = max(width, len(e.ID))
		}
		for _, e := range l.Entries {
			if _, err := fmt.Fprintf(w, "  %-*s  %s\n", width, e.ID, strings.Join(e.Labels(), ", ")); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintln(w, "Skipped re-links (original not in store)")
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  %s -> %s\n", s.StructureID, s.PreviousID)
		}
		fmt.Fprintln(w)
	}

	s := r.Stats
	rows := []struct {
		label string
		value int
	}{
		{"structures", s.Structures},
		{"active branches", s.Branches},
		{"kept", s.Kept},
		{"deleted", s.Deleted},
		{"orphans", s.Orphans},
		{"relinked", s.Relinked},
		{"missing ancestors", s.Missing},
		{"skipped re-links", s.Skipped},
	}
	fmt.Fprintln(w, "Summary")
	for _, row := range rows {
		if _, err := p.Fprintf(w, "  %-18s %d\n", row.label+":", row.value); err != nil {
			return err
		}
	}
	return nil
}

// FormatCount renders n with locale digit grouping, e.g. 1,234,567.
func FormatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
