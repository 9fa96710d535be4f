package redact

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// Redactor applies PII detection to candidate text and rewrites every
// detected span to its category placeholder. An optional NER detector runs
// in front of the pattern detector; when it is missing or failing the
// redactor degrades to patterns only instead of failing the pipeline.
type Redactor struct {
	ner      Detector
	patterns *PatternDetector
	logger   *slog.Logger
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithNER plugs in the external NER backend for NAME/LOCATION detection.
func WithNER(d Detector) Option {
	return func(r *Redactor) { r.ner = d }
}

// New builds a Redactor. Without options it is pattern-only and degraded.
func New(logger *slog.Logger, opts ...Option) *Redactor {
	r := &Redactor{
		patterns: NewPatternDetector(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type appliedSpan struct {
	text     string
	category Category
}

// Redact rewrites text with placeholders and returns the diff report proving
// what changed. It has no side effects besides logging.
func (r *Redactor) Redact(ctx context.Context, text string) (string, DiffReport) {
	entities, version, degraded := r.detect(ctx, text)

	spans := mergeSpans(entities)
	var b strings.Builder
	applied := make([]appliedSpan, 0, len(spans))
	pos := 0
	for _, s := range spans {
		b.WriteString(text[pos:s.Start])
		b.WriteString(s.Category.Placeholder())
		applied = append(applied, appliedSpan{text: text[s.Start:s.End], category: s.Category})
		pos = s.End
	}
	b.WriteString(text[pos:])
	redacted := b.String()

	report := buildDiffReport(text, redacted, applied)
	report.DetectorVersion = version
	report.Degraded = degraded

	r.logger.InfoContext(ctx, "redaction complete",
		"detector_version", version,
		"degraded", degraded,
		"spans_removed", len(applied),
		"redaction_rate", report.Stats.RedactionRate,
	)
	return redacted, report
}

func (r *Redactor) detect(ctx context.Context, text string) ([]Entity, string, bool) {
	patternEntities, _ := r.patterns.Detect(ctx, text)

	if r.ner == nil {
		return patternEntities, r.patterns.Version(), true
	}
	nerEntities, err := r.ner.Detect(ctx, text)
	if err != nil {
		r.logger.WarnContext(ctx, "ner backend unavailable, falling back to patterns",
			"error", err.Error(),
		)
		return patternEntities, r.patterns.Version(), true
	}
	version := r.ner.Version() + "+" + r.patterns.Version()
	return append(nerEntities, patternEntities...), version, false
}

// mergeSpans sorts entities and drops overlaps, preferring the span that
// starts first and, on ties, the longer one.
func mergeSpans(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}
	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	out := sorted[:1]
	for _, e := range sorted[1:] {
		last := out[len(out)-1]
		if e.Start < last.End {
			continue
		}
		out = append(out, e)
	}
	return out
}
