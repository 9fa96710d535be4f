package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"velos/internal/candidate"
	"velos/internal/extract"
	"velos/internal/llm"
	"velos/internal/platform/config"
	"velos/internal/registry"
	dErrors "velos/pkg/domain-errors"
)

// Session carries answers from the API into a running interrogation. One
// answer slot: a second answer before the next question is rejected.
type Session struct {
	answers chan string
}

func NewSession() *Session {
	return &Session{answers: make(chan string, 1)}
}

// Deliver hands an answer to the waiting interrogator.
func (s *Session) Deliver(answer string) error {
	select {
	case s.answers <- answer:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidState, "previous answer not yet processed")
	}
}

// InterrogationOutcome is the third stage's result.
type InterrogationOutcome struct {
	TrustScore float64
	Exchanges  []candidate.QA
	Passed     bool
	TimedOut   bool
	Reason     string
	Credential *registry.VerifiableCredential
}

// Interrogator probes the candidate's most salient claims with generated
// questions and grades the answers. A candidate that stops answering times
// out and fails; silence is never graded.
type Interrogator struct {
	client   llm.Client
	registry *registry.Registry
	issuer   registry.DID
	cfg      config.Pipeline
	logger   *slog.Logger
}

func NewInterrogator(client llm.Client, reg *registry.Registry, issuer registry.DID, cfg config.Pipeline, logger *slog.Logger) *Interrogator {
	return &Interrogator{
		client:   client,
		registry: reg,
		issuer:   issuer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the stage. onQuestion is called before each wait so the
// pending question is visible through the status API.
func (i *Interrogator) Run(ctx context.Context, c candidate.Candidate, session *Session, onQuestion func(context.Context, candidate.QA) error) (InterrogationOutcome, error) {
	claims := selectClaims(claimsOf(c), i.cfg.MaxQuestions)
	if len(claims) == 0 {
		return InterrogationOutcome{
			Reason: "no claims available to interrogate",
		}, nil
	}

	out := InterrogationOutcome{}
	var total float64
	for n, claim := range claims {
		question := i.generateQuestion(ctx, claim)
		qa := candidate.QA{ClaimID: claim.ID, Question: question}
		if err := onQuestion(ctx, qa); err != nil {
			return InterrogationOutcome{}, err
		}

		timer := time.NewTimer(i.cfg.AnswerIdleTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return InterrogationOutcome{}, ctx.Err()
		case <-timer.C:
			out.TimedOut = true
			out.Reason = "timeout"
			out.Exchanges = append(out.Exchanges, qa)
			i.logger.WarnContext(ctx, "interrogation timed out",
				"candidate_id", c.ID,
				"question", n+1,
			)
			return out, nil
		case answer := <-session.answers:
			timer.Stop()
			qa.Answer = answer
			grade, err := i.gradeAnswer(ctx, claim, question, answer)
			if err != nil {
				return InterrogationOutcome{}, fmt.Errorf("grade answer %d: %w", n+1, err)
			}
			qa.Grade = grade
			total += grade
			out.Exchanges = append(out.Exchanges, qa)
		}
	}

	out.TrustScore = total / float64(len(out.Exchanges)) * 10
	if out.TrustScore >= i.cfg.TrustPassThreshold {
		out.Passed = true
		vc, err := i.registry.IssueCredential(ctx, i.issuer, c.SubjectDID, registry.CredentialAuthenticity, registry.ClaimSet{
			Authenticity: &registry.AuthenticityClaims{
				TrustScore:     out.TrustScore,
				QuestionsAsked: len(out.Exchanges),
				AnswersSummary: summarize(out.Exchanges),
			},
		})
		if err != nil {
			return InterrogationOutcome{}, fmt.Errorf("issue authenticity credential: %w", err)
		}
		out.Credential = &vc
	} else {
		out.Reason = fmt.Sprintf("trust score %.1f below threshold %.1f", out.TrustScore, i.cfg.TrustPassThreshold)
	}

	i.logger.InfoContext(ctx, "interrogation complete",
		"candidate_id", c.ID,
		"trust_score", out.TrustScore,
		"questions", len(out.Exchanges),
		"passed", out.Passed,
	)
	return out, nil
}

func claimsOf(c candidate.Candidate) []extract.Claim {
	if r := c.Result(candidate.StageGatekeeper); r != nil {
		return r.Claims
	}
	return nil
}

// selectClaims picks the most salient claims, stable on ties.
func selectClaims(claims []extract.Claim, max int) []extract.Claim {
	sorted := make([]extract.Claim, len(claims))
	copy(sorted, claims)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Salience > sorted[j].Salience })
	if max > 0 && len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

const questionPrompt = `You are verifying a job candidate's claim through one probing question.
Claim (%s): %s

Write a single specific question that someone who actually did this could
answer easily but a fabricator would struggle with. Return only the question.`

// generateQuestion asks the model for a probing question and falls back to a
// template when the model is unavailable. The fallback keeps the
// interrogation running; grading still requires a real answer.
func (i *Interrogator) generateQuestion(ctx context.Context, claim extract.Claim) string {
	resp, err := i.client.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(questionPrompt, claim.Kind, claim.Text),
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		i.logger.WarnContext(ctx, "question generation failed, using template", "claim_id", claim.ID)
		return fallbackQuestion(claim)
	}
	return strings.TrimSpace(resp.Text)
}

func fallbackQuestion(claim extract.Claim) string {
	switch claim.Kind {
	case "project":
		return fmt.Sprintf("Walk me through the hardest technical problem you hit while you %s. What did you try first, and why did it fail?", lowerFirst(claim.Text))
	case "skill":
		return fmt.Sprintf("Describe a specific situation where your experience with %s made a measurable difference. What would have happened without it?", lowerFirst(claim.Text))
	default:
		return fmt.Sprintf("You stated: %q. Give a concrete example with specifics only someone who did this would know.", claim.Text)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

const gradingPrompt = `You are grading how credibly a candidate's answer supports their claim.
Claim: %s
Question: %s
Answer: %s

Score 0-10: 0 means evasive or fabricated, 10 means specific, consistent, and
clearly grounded in real experience. Return ONLY JSON: {"score": N, "rationale": "..."}`

// gradeAnswer scores one answer 0-10. A model failure is a stage error, never
// a default grade.
func (i *Interrogator) gradeAnswer(ctx context.Context, claim extract.Claim, question, answer string) (float64, error) {
	resp, err := i.client.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(gradingPrompt, claim.Text, question, answer),
		Temperature: 0,
	})
	if err != nil {
		return 0, err
	}

	start := strings.Index(resp.Text, "{")
	end := strings.LastIndex(resp.Text, "}")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("no JSON object in grading output")
	}
	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(resp.Text[start:end+1]), &parsed); err != nil {
		return 0, fmt.Errorf("parse grading output: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 10 {
		parsed.Score = 10
	}
	return parsed.Score, nil
}

func summarize(exchanges []candidate.QA) string {
	var total float64
	for _, qa := range exchanges {
		total += qa.Grade
	}
	return fmt.Sprintf("%d answers graded, average %.1f/10", len(exchanges), total/float64(len(exchanges)))
}
