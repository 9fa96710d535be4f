// Package audit keeps the append-only trail of pipeline actions. Entries are
// sequenced, never updated, and never deleted; a failed append fails the
// operation that produced it.
package audit

import "time"

// Entry is one audit record.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Action names. Actor is the stage or component, Subject the candidate id or
// credential id the action applies to.
const (
	ActionPipelineStarted   = "pipeline_started"
	ActionPipelineAborted   = "pipeline_aborted"
	ActionStageStarted      = "stage_started"
	ActionStagePassed       = "stage_passed"
	ActionStageFailed       = "stage_failed"
	ActionStageTimeout      = "stage_timeout"
	ActionQuestionAsked     = "question_asked"
	ActionAnswerSubmitted   = "answer_submitted"
	ActionCredentialIssued  = "credential_issued"
	ActionCredentialRevoked = "credential_revoked"
	ActionPacketAssembled   = "packet_assembled"
	ActionPacketVerified    = "packet_verified"
)
