package redact

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRedactRemovesContactDetails(t *testing.T) {
	r := New(testLogger())
	ctx := context.Background()

	text := "Reach me at john@example.com or 555-123-4567. SSN 123-45-6789."
	redacted, report := r.Redact(ctx, text)

	assert.NotContains(t, redacted, "john@example.com")
	assert.NotContains(t, redacted, "555-123-4567")
	assert.NotContains(t, redacted, "123-45-6789")
	assert.Contains(t, redacted, "[EMAIL_REDACTED]")
	assert.Contains(t, redacted, "[PHONE_REDACTED]")
	assert.Contains(t, redacted, "[SSN_REDACTED]")
	assert.True(t, report.Degraded, "pattern-only detection marks the report degraded")
	assert.Greater(t, report.Stats.Deletions, 0)
}

func TestRedactFlaggedSpansNeverSurvive(t *testing.T) {
	r := New(testLogger())
	ctx := context.Background()

	text := "Mr. John Smith (john.smith@corp.io) studied at Stanford, born in 1975."
	redacted, report := r.Redact(ctx, text)

	for _, segment := range report.RemovedSegments {
		assert.NotContains(t, redacted, segment)
	}
	assert.NotContains(t, redacted, "john.smith@corp.io")
	assert.NotContains(t, redacted, "Stanford")
	assert.NotContains(t, redacted, "1975")
}

func TestRedactIdempotent(t *testing.T) {
	r := New(testLogger())
	ctx := context.Background()

	text := "Contact jane@corp.io, phone 555-987-6543, she/her, graduated from MIT."
	redacted, _ := r.Redact(ctx, text)

	again, report := r.Redact(ctx, redacted)
	assert.Equal(t, redacted, again)
	assert.Equal(t, 0, report.Stats.Insertions)
	assert.Equal(t, 0, report.Stats.Deletions)
}

func TestRedactCleanTextUnchanged(t *testing.T) {
	r := New(testLogger())
	ctx := context.Background()

	text := "Built a payment service in Go with gRPC and Postgres."
	redacted, report := r.Redact(ctx, text)

	assert.Equal(t, text, redacted)
	assert.Equal(t, 0, report.Stats.TotalChanges)
	assert.Equal(t, 0.0, report.Stats.RedactionRate)
}

func TestRedactDeterministic(t *testing.T) {
	r := New(testLogger())
	ctx := context.Background()
	text := "Ms. Ada Lovelace, ada@math.org, linkedin.com/in/ada, Cambridge."

	first, firstReport := r.Redact(ctx, text)
	for range 10 {
		again, report := r.Redact(ctx, text)
		assert.Equal(t, first, again)
		assert.Equal(t, firstReport.Changes, report.Changes)
	}
}

type failingNER struct{}

func (failingNER) Detect(context.Context, string) ([]Entity, error) {
	return nil, errors.New("ner service down")
}
func (failingNER) Version() string { return "ner/test" }

type staticNER struct{ entities []Entity }

func (d staticNER) Detect(context.Context, string) ([]Entity, error) { return d.entities, nil }
func (d staticNER) Version() string                                  { return "ner/test" }

func TestRedactFallsBackWhenNERUnavailable(t *testing.T) {
	r := New(testLogger(), WithNER(failingNER{}))
	ctx := context.Background()

	redacted, report := r.Redact(ctx, "email me: a@b.co")
	assert.True(t, report.Degraded)
	assert.NotContains(t, redacted, "a@b.co")
}

func TestRedactUsesNEREntities(t *testing.T) {
	text := "Grace Hopper wrote compilers."
	r := New(testLogger(), WithNER(staticNER{entities: []Entity{
		{Start: 0, End: 12, Category: CategoryName},
	}}))

	redacted, report := r.Redact(context.Background(), text)
	assert.Equal(t, "[NAME_REDACTED] wrote compilers.", redacted)
	assert.False(t, report.Degraded)
	require.NotEmpty(t, report.RemovedSegments)
	assert.Equal(t, "Grace Hopper", report.RemovedSegments[0])
}

func TestMergeSpansDropsOverlaps(t *testing.T) {
	spans := mergeSpans([]Entity{
		{Start: 10, End: 20, Category: CategoryEmail},
		{Start: 15, End: 25, Category: CategoryPhone},
		{Start: 30, End: 35, Category: CategorySSN},
		{Start: 10, End: 18, Category: CategoryOther},
	})
	require.Len(t, spans, 2)
	assert.Equal(t, Entity{Start: 10, End: 20, Category: CategoryEmail}, spans[0])
	assert.Equal(t, Entity{Start: 30, End: 35, Category: CategorySSN}, spans[1])
}
