// Package candidate holds the screening-run aggregate: one Candidate per
// submission, its stage results, and the pipeline state machine values.
package candidate

import (
	"time"

	"velos/internal/extract"
	"velos/internal/redact"
	"velos/internal/registry"
)

// State is the pipeline state machine position. Terminal states never
// transition again; the candidate record is immutable once terminal.
type State string

const (
	StateIntake            State = "INTAKE"
	StateGatekeeperRunning State = "GATEKEEPER_RUNNING"
	StateGatekeeperFailed  State = "GATEKEEPER_FAILED"
	StateValidatorRunning  State = "VALIDATOR_RUNNING"
	StateValidatorFailed   State = "VALIDATOR_FAILED"
	StateInquisitorRunning State = "INQUISITOR_RUNNING"
	StateInquisitorFailed  State = "INQUISITOR_FAILED"
	StateCompleted         State = "COMPLETED"
	StateAborted           State = "ABORTED"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	switch s {
	case StateGatekeeperFailed, StateValidatorFailed, StateInquisitorFailed, StateCompleted, StateAborted:
		return true
	}
	return false
}

// Stage names, used in stage results and audit entries.
const (
	StageGatekeeper   = "gatekeeper"
	StageSkillMatch   = "skill_match"
	StageAuthenticity = "authenticity"
)

// StageStatus is one stage's outcome.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
)

// Citation is one resume chunk backing a requirement match.
type Citation struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Evidence ties a job requirement to its best-matching resume chunks.
type Evidence struct {
	Requirement string     `json:"requirement"`
	Citations   []Citation `json:"citations"`
}

// StageResult is one stage's recorded outcome. Appended by the owning stage
// only; never mutated after the stage finishes.
type StageResult struct {
	Stage      string          `json:"stage"`
	Status     StageStatus     `json:"status"`
	Score      float64         `json:"score"`
	Claims     []extract.Claim `json:"claims,omitempty"`
	Evidence   []Evidence      `json:"evidence,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// QA is one interrogation exchange. Grade is 0-10, set after the answer is
// scored.
type QA struct {
	ClaimID  string  `json:"claim_id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer,omitempty"`
	Grade    float64 `json:"grade"`
}

// Candidate is one screening run. Only the stage that owns the current state
// mutates it, via the store's Update.
type Candidate struct {
	ID             string
	SubjectDID     registry.DID
	RawText        string
	RedactedText   string
	JobDescription string
	MinYears       float64
	State          State
	StageResults   []StageResult
	DiffReport     redact.DiffReport
	// CleanToken proves the text passed the gatekeeper's redaction before
	// any later stage saw it.
	CleanToken string
	// PendingQuestion is set while the interrogator waits for an answer.
	PendingQuestion string
	Exchanges       []QA
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FinalStatus summarizes the terminal state for reporting.
func (c *Candidate) FinalStatus() string {
	switch c.State {
	case StateCompleted:
		return "verified"
	case StateGatekeeperFailed, StateValidatorFailed, StateInquisitorFailed:
		return "rejected"
	case StateAborted:
		return "aborted"
	default:
		return "in_progress"
	}
}

// Result returns the recorded result for a stage, or nil.
func (c *Candidate) Result(stage string) *StageResult {
	for i := range c.StageResults {
		if c.StageResults[i].Stage == stage {
			return &c.StageResults[i]
		}
	}
	return nil
}
