package redact

import (
	"context"
	"regexp"
)

// Detector finds PII spans in text. The production NER backend sits behind
// this interface; PatternDetector is the always-available fallback.
// Detect must be deterministic for a fixed Version.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Entity, error)
	Version() string
}

type rule struct {
	re       *regexp.Regexp
	category Category
}

// Patterns follow the original screening ruleset: contact details, national
// identifiers, profile URLs, institution names, and protected-class wording.
var patternRules = []rule{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), CategoryEmail},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), CategorySSN},
	{regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`), CategoryPhone},
	{regexp.MustCompile(`\b\d+\s+[A-Z][a-z]+\s+(Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Lane|Ln\.?|Boulevard|Blvd\.?|Drive|Dr\.?)\b`), CategoryAddress},
	{regexp.MustCompile(`(?i)linkedin\.com/in/[A-Za-z0-9_-]+`), CategoryOther},
	{regexp.MustCompile(`(?i)github\.com/[A-Za-z0-9_-]+`), CategoryOther},
	{regexp.MustCompile(`https?://[^\s]+`), CategoryOther},
	// Honorific followed by capitalized words is the pattern-only stand-in
	// for NER person detection.
	{regexp.MustCompile(`\b(Mr|Mrs|Ms|Miss|Dr)\.?\s+[A-Z][a-z]+(\s+[A-Z][a-z]+)?`), CategoryName},
	// Birth years only (1940-1989), not employment or graduation years.
	{regexp.MustCompile(`(?i)\b(born in|DOB:?|date of birth:?)\s*(19[4-8]\d)?\b`), CategoryDate},
	{regexp.MustCompile(`\b19[4-8]\d\b`), CategoryDate},
	{regexp.MustCompile(`(?i)\b\d{1,2}\s+(years?|yrs?)\s+old\b`), CategoryDate},
}

// Word lists redacted as OTHER: education prestige markers, gendered
// language, and protected-class indicators, all bias vectors in screening.
var wordListRules = func() []rule {
	colleges := `IIT|NIT|BITS|IIIT|IIM|ISB|Stanford|MIT|Harvard|Cambridge|Oxford|Princeton|Yale|Columbia|Berkeley|UCLA|Caltech|Ivy League`
	gendered := `male|female|man|woman|he/him|she/her|they/them|husband|wife|father|mother|son|daughter|maternity|paternity`
	protected := `christian|muslim|hindu|jewish|buddhist|sikh|church|mosque|temple|synagogue|caste|ethnicity`
	return []rule{
		{regexp.MustCompile(`(?i)\b(` + colleges + `)\b`), CategoryOther},
		{regexp.MustCompile(`(?i)\b(` + gendered + `)\b`), CategoryOther},
		{regexp.MustCompile(`(?i)\b(` + protected + `)\b`), CategoryOther},
	}
}()

// PatternDetector is the pattern-only PII detector. It is pure and always
// available; the redactor marks the diff report degraded when it runs
// without an NER backend in front.
type PatternDetector struct{}

func NewPatternDetector() *PatternDetector {
	return &PatternDetector{}
}

func (d *PatternDetector) Version() string { return "patterns/v1" }

func (d *PatternDetector) Detect(_ context.Context, text string) ([]Entity, error) {
	var entities []Entity
	for _, r := range patternRules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			entities = append(entities, Entity{Start: loc[0], End: loc[1], Category: r.category})
		}
	}
	for _, r := range wordListRules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			entities = append(entities, Entity{Start: loc[0], End: loc[1], Category: r.category})
		}
	}
	return entities, nil
}
