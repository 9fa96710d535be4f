package redact

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// buildDiffReport computes the ordered change list between original and
// redacted text. Deletion hunks are attributed back to the PII category of
// the span that removed them.
func buildDiffReport(original, redacted string, applied []appliedSpan) DiffReport {
	report := DiffReport{Changes: []Change{}, RemovedSegments: []string{}}
	if original == "" && redacted == "" {
		return report
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, redacted, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	unchangedChars := 0
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			unchangedChars += len(d.Text)
			report.Changes = append(report.Changes, Change{
				Type:         ChangeUnchanged,
				OriginalSpan: d.Text,
				RedactedSpan: d.Text,
			})
		case diffmatchpatch.DiffDelete:
			report.Stats.Deletions++
			report.RemovedSegments = append(report.RemovedSegments, d.Text)
			report.Changes = append(report.Changes, Change{
				Type:         ChangeDeletion,
				OriginalSpan: d.Text,
				PIICategory:  categoryFor(d.Text, applied),
			})
		case diffmatchpatch.DiffInsert:
			report.Stats.Insertions++
			report.Changes = append(report.Changes, Change{
				Type:         ChangeAddition,
				RedactedSpan: d.Text,
			})
		}
	}

	report.Stats.TotalChanges = report.Stats.Deletions + report.Stats.Insertions
	report.Stats.UnchangedChars = unchangedChars
	if len(original) > 0 {
		report.Stats.RedactionRate = float64(len(original)-unchangedChars) / float64(len(original))
	}
	return report
}

// categoryFor finds the category of the applied span whose removed text
// overlaps the diff hunk. Diff cleanup can split or merge hunks, so match by
// containment in either direction before giving up with OTHER.
func categoryFor(hunk string, applied []appliedSpan) Category {
	for _, s := range applied {
		if s.text == hunk {
			return s.category
		}
	}
	for _, s := range applied {
		if strings.Contains(hunk, s.text) || strings.Contains(s.text, hunk) {
			return s.category
		}
	}
	return CategoryOther
}
