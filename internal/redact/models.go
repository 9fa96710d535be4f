// Package redact removes personally identifying information from candidate
// text and produces the diff report that proves what was removed. Redaction
// is pure: same text and detector version always yield the same output.
package redact

// Category classifies a detected PII span.
type Category string

const (
	CategoryName     Category = "NAME"
	CategoryEmail    Category = "EMAIL"
	CategoryPhone    Category = "PHONE"
	CategoryLocation Category = "LOCATION"
	CategoryDate     Category = "DATE"
	CategoryAddress  Category = "ADDRESS"
	CategorySSN      Category = "SSN"
	CategoryOther    Category = "OTHER"
)

// Placeholder returns the replacement token written in place of a span.
func (c Category) Placeholder() string {
	switch c {
	case CategoryName:
		return "[NAME_REDACTED]"
	case CategoryEmail:
		return "[EMAIL_REDACTED]"
	case CategoryPhone:
		return "[PHONE_REDACTED]"
	case CategoryLocation:
		return "[LOCATION_REDACTED]"
	case CategoryDate:
		return "[DATE_REDACTED]"
	case CategoryAddress:
		return "[ADDRESS_REDACTED]"
	case CategorySSN:
		return "[SSN_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

// Entity is one detected PII span in the original text.
type Entity struct {
	Start    int
	End      int
	Category Category
}

// ChangeType mirrors diff semantics: text present only in the original
// (deletion), only in the redacted output (addition), or in both.
type ChangeType string

const (
	ChangeDeletion  ChangeType = "deletion"
	ChangeAddition  ChangeType = "addition"
	ChangeUnchanged ChangeType = "unchanged"
)

// Change is one ordered diff hunk between original and redacted text.
type Change struct {
	Type         ChangeType `json:"type"`
	OriginalSpan string     `json:"original_span,omitempty"`
	RedactedSpan string     `json:"redacted_span,omitempty"`
	PIICategory  Category   `json:"pii_category,omitempty"`
}

// Stats aggregates the diff for the audit trail.
type Stats struct {
	TotalChanges   int     `json:"total_changes"`
	Deletions      int     `json:"deletions"`
	Insertions     int     `json:"insertions"`
	UnchangedChars int     `json:"unchanged_chars"`
	RedactionRate  float64 `json:"redaction_rate"`
}

// DiffReport is the redaction evidence bundled into the trust packet.
// Read-only once produced.
type DiffReport struct {
	Changes         []Change `json:"changes"`
	Stats           Stats    `json:"stats"`
	RemovedSegments []string `json:"removed_segments"`
	DetectorVersion string   `json:"detector_version"`
	// Degraded is set when the NER backend was unavailable and only
	// pattern-based detection ran. Redaction never fails hard.
	Degraded bool `json:"degraded"`
}
