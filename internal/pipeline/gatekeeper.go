// Package pipeline runs the three screening stages over a candidate and owns
// the state machine between them. Stages never fabricate a pass: a
// collaborator failure halts the run at the failing stage.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"velos/internal/candidate"
	"velos/internal/extract"
	"velos/internal/platform/config"
	"velos/internal/redact"
	"velos/internal/registry"
)

// cleanToken derives the proof that redaction ran before downstream stages.
// Later stages refuse text that does not carry it.
func cleanToken(redactedText string, approvedAt time.Time) string {
	textHash := sha256.Sum256([]byte(redactedText))
	payload := fmt.Sprintf("%s:%d:GATEKEEPER_APPROVED:v1",
		hex.EncodeToString(textHash[:]), approvedAt.Unix())
	sum := sha256.Sum256([]byte(payload))
	return "CLEAN-" + strings.ToUpper(hex.EncodeToString(sum[:8]))
}

// GatekeeperOutcome is everything the first stage produces.
type GatekeeperOutcome struct {
	RedactedText    string
	DiffReport      redact.DiffReport
	Claims          []extract.Claim
	ExperienceYears float64
	CleanToken      string
	Passed          bool
	Reason          string
	Credential      *registry.VerifiableCredential
}

// Gatekeeper redacts PII, extracts structured claims, and decides
// eligibility. It is the only stage that ever sees raw candidate text.
type Gatekeeper struct {
	redactor  *redact.Redactor
	extractor *extract.Extractor
	registry  *registry.Registry
	issuer    registry.DID
	cfg       config.Pipeline
	logger    *slog.Logger
	now       func() time.Time
}

func NewGatekeeper(redactor *redact.Redactor, extractor *extract.Extractor, reg *registry.Registry, issuer registry.DID, cfg config.Pipeline, logger *slog.Logger) *Gatekeeper {
	return &Gatekeeper{
		redactor:  redactor,
		extractor: extractor,
		registry:  reg,
		issuer:    issuer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the stage. An extraction error is returned as-is so the runner
// records a stage-execution failure instead of an eligibility decision.
func (g *Gatekeeper) Run(ctx context.Context, c candidate.Candidate) (GatekeeperOutcome, error) {
	redacted, report := g.redactor.Redact(ctx, c.RawText)

	extraction, err := g.extractor.Extract(ctx, redacted)
	if err != nil {
		return GatekeeperOutcome{}, err
	}

	minYears := c.MinYears
	if minYears <= 0 {
		minYears = g.cfg.MinYears
	}

	out := GatekeeperOutcome{
		RedactedText:    redacted,
		DiffReport:      report,
		Claims:          extraction.Claims,
		ExperienceYears: extraction.ExperienceYears,
	}
	if extraction.ExperienceYears < minYears {
		out.Reason = fmt.Sprintf("experience %.1f years below required %.1f", extraction.ExperienceYears, minYears)
		return out, nil
	}

	out.Passed = true
	out.CleanToken = cleanToken(redacted, g.now())

	vc, err := g.registry.IssueCredential(ctx, g.issuer, c.SubjectDID, registry.CredentialEligibility, registry.ClaimSet{
		Eligibility: &registry.EligibilityClaims{
			Eligible:        true,
			ExperienceYears: extraction.ExperienceYears,
		},
	})
	if err != nil {
		return GatekeeperOutcome{}, fmt.Errorf("issue eligibility credential: %w", err)
	}
	out.Credential = &vc

	g.logger.InfoContext(ctx, "gatekeeper passed",
		"candidate_id", c.ID,
		"experience_years", extraction.ExperienceYears,
		"claims", len(extraction.Claims),
	)
	return out, nil
}
