package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"velos/internal/candidate"
	"velos/internal/platform/config"
	"velos/internal/registry"
	"velos/internal/vector"
)

// SkillMatchOutcome is the second stage's result.
type SkillMatchOutcome struct {
	Score         float64
	Evidence      []candidate.Evidence
	MatchedSkills []string
	MissingSkills []string
	Passed        bool
	Reason        string
	Credential    *registry.VerifiableCredential
}

// SkillMatcher scores the redacted resume against the job description using
// embedding similarity. It refuses text that lacks the gatekeeper's clean
// token; that provenance check is what keeps raw PII out of this stage.
type SkillMatcher struct {
	embedder vector.Embedder
	registry *registry.Registry
	issuer   registry.DID
	cfg      config.Pipeline
	logger   *slog.Logger
}

func NewSkillMatcher(embedder vector.Embedder, reg *registry.Registry, issuer registry.DID, cfg config.Pipeline, logger *slog.Logger) *SkillMatcher {
	return &SkillMatcher{
		embedder: embedder,
		registry: reg,
		issuer:   issuer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (m *SkillMatcher) Run(ctx context.Context, c candidate.Candidate) (SkillMatchOutcome, error) {
	if !strings.HasPrefix(c.CleanToken, "CLEAN-") {
		return SkillMatchOutcome{}, fmt.Errorf("candidate %s has no clean token, refusing unredacted input", c.ID)
	}

	requirements := splitRequirements(c.JobDescription)
	chunks := splitChunks(c.RedactedText)
	if len(requirements) == 0 || len(chunks) == 0 {
		return SkillMatchOutcome{
			Score:  0,
			Reason: "empty job description or resume, nothing to match",
		}, nil
	}

	reqVectors, err := m.embedder.Embed(ctx, requirements)
	if err != nil {
		return SkillMatchOutcome{}, fmt.Errorf("embed requirements: %w", err)
	}
	chunkVectors, err := m.embedder.Embed(ctx, chunks)
	if err != nil {
		return SkillMatchOutcome{}, fmt.Errorf("embed resume chunks: %w", err)
	}

	out := SkillMatchOutcome{}
	var total float64
	for i, req := range requirements {
		sims := make([]candidate.Citation, len(chunks))
		best := 0.0
		for j, chunk := range chunks {
			sim := vector.Cosine(reqVectors[i], chunkVectors[j])
			sims[j] = candidate.Citation{Text: chunk, Score: sim}
			if sim > best {
				best = sim
			}
		}
		sort.SliceStable(sims, func(a, b int) bool { return sims[a].Score > sims[b].Score })
		topK := m.cfg.EvidenceTopK
		if topK > len(sims) {
			topK = len(sims)
		}
		out.Evidence = append(out.Evidence, candidate.Evidence{
			Requirement: req,
			Citations:   sims[:topK],
		})

		reqScore := best * 100
		total += reqScore
		if reqScore >= m.cfg.SkillPassThreshold {
			out.MatchedSkills = append(out.MatchedSkills, req)
		} else {
			out.MissingSkills = append(out.MissingSkills, req)
		}
	}
	out.Score = total / float64(len(requirements))

	if out.Score >= m.cfg.SkillPassThreshold {
		out.Passed = true
		vc, err := m.registry.IssueCredential(ctx, m.issuer, c.SubjectDID, registry.CredentialSkillMatch, registry.ClaimSet{
			SkillMatch: &registry.SkillMatchClaims{
				Score:         out.Score,
				MatchedSkills: out.MatchedSkills,
				MissingSkills: out.MissingSkills,
			},
		})
		if err != nil {
			return SkillMatchOutcome{}, fmt.Errorf("issue skill match credential: %w", err)
		}
		out.Credential = &vc
	} else {
		out.Reason = fmt.Sprintf("skill match score %.1f below threshold %.1f", out.Score, m.cfg.SkillPassThreshold)
	}

	m.logger.InfoContext(ctx, "skill match scored",
		"candidate_id", c.ID,
		"score", out.Score,
		"requirements", len(requirements),
		"passed", out.Passed,
	)
	return out, nil
}

// splitRequirements breaks a job description into individual requirement
// lines. Bullets and blank lines are stripped.
func splitRequirements(jd string) []string {
	var out []string
	for _, line := range strings.Split(jd, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// splitChunks breaks resume text into sentence-ish chunks for matching.
func splitChunks(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == '.' || r == ';' }) {
			part = strings.TrimSpace(part)
			if len(part) >= 3 {
				out = append(out, part)
			}
		}
	}
	return out
}
