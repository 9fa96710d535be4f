package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"velos/internal/audit"
	"velos/internal/candidate"
	"velos/internal/packet"
	"velos/internal/platform/metrics"
	"velos/internal/registry"
	dErrors "velos/pkg/domain-errors"
	"velos/pkg/platform/sentinel"
)

// SubmitRequest is one screening submission.
type SubmitRequest struct {
	ResumeText     string  `json:"resume_text"`
	JobDescription string  `json:"job_description"`
	MinYears       float64 `json:"min_years,omitempty"`
}

// Status is the candidate's externally visible state. Raw text never appears
// here.
type Status struct {
	CandidateID     string                  `json:"candidate_id"`
	Subject         registry.DID            `json:"subject"`
	State           candidate.State         `json:"state"`
	FinalStatus     string                  `json:"final_status"`
	StageResults    []candidate.StageResult `json:"stage_results,omitempty"`
	PendingQuestion string                  `json:"pending_question,omitempty"`
}

// Stats is the aggregate pipeline view.
type Stats struct {
	ByState map[candidate.State]int `json:"by_state"`
	Total   int                     `json:"total"`
}

// Service is the API facade over the runner, registry, and assembler.
type Service struct {
	store     candidate.Store
	runner    *Runner
	registry  *registry.Registry
	assembler *packet.Assembler
	auditLog  *audit.Log
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(store candidate.Store, runner *Runner, reg *registry.Registry, assembler *packet.Assembler, auditLog *audit.Log, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		runner:    runner,
		registry:  reg,
		assembler: assembler,
		auditLog:  auditLog,
		metrics:   m,
		logger:    logger,
	}
}

// Submit validates the submission, creates the candidate, and launches its
// pipeline.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Status, error) {
	if strings.TrimSpace(req.ResumeText) == "" {
		return Status{}, dErrors.New(dErrors.CodeInvalidInput, "resume_text is required")
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return Status{}, dErrors.New(dErrors.CodeInvalidInput, "job_description is required")
	}
	if req.MinYears < 0 {
		return Status{}, dErrors.New(dErrors.CodeInvalidInput, "min_years must not be negative")
	}

	subject, err := s.registry.CreateDID(ctx, registry.DIDKindCandidate, "candidate", nil)
	if err != nil {
		return Status{}, err
	}

	c := candidate.Candidate{
		ID:             "cand-" + uuid.NewString(),
		SubjectDID:     subject.DID,
		RawText:        req.ResumeText,
		JobDescription: req.JobDescription,
		MinYears:       req.MinYears,
		State:          candidate.StateIntake,
	}
	if err := s.store.Save(ctx, c); err != nil {
		return Status{}, dErrors.Wrap(dErrors.CodeInternal, "store candidate", err)
	}

	if err := s.auditLog.Record(ctx, audit.Entry{
		Actor:   "api",
		Action:  audit.ActionPipelineStarted,
		Subject: c.ID,
	}); err != nil {
		return Status{}, dErrors.Wrap(dErrors.CodeInternal, "audit submission", err)
	}
	if s.metrics != nil {
		s.metrics.PipelinesStarted.Inc()
	}

	s.runner.Launch(c.ID)
	s.logger.InfoContext(ctx, "candidate submitted", "candidate_id", c.ID)
	return s.statusOf(c), nil
}

// GetStatus returns the candidate's current position in the pipeline.
func (s *Service) GetStatus(ctx context.Context, id string) (Status, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Status{}, notFound(err)
	}
	return s.statusOf(c), nil
}

// SubmitAnswer delivers an interrogation answer. Valid only while the
// interrogator is waiting on a question.
func (s *Service) SubmitAnswer(ctx context.Context, id, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "answer is required")
	}

	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if c.State != candidate.StateInquisitorRunning {
		return dErrors.New(dErrors.CodeInvalidState, "candidate has no pending question")
	}

	session, ok := s.runner.SessionFor(id)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidState, "interrogation is not running")
	}
	if err := session.Deliver(answer); err != nil {
		return err
	}
	return s.auditLog.Record(ctx, audit.Entry{
		Actor:   "api",
		Action:  audit.ActionAnswerSubmitted,
		Subject: id,
	})
}

// Abort cancels a running pipeline.
func (s *Service) Abort(ctx context.Context, id string) error {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if c.State.Terminal() {
		return dErrors.New(dErrors.CodeInvalidState, "candidate already terminal")
	}
	s.runner.Abort(id)
	return nil
}

// GetTrustPacket returns the candidate's trust packet. Terminal candidates
// get the sealed artifact, identical on every read; non-terminal candidates
// get a fresh partial, unsigned packet reflecting progress so far.
func (s *Service) GetTrustPacket(ctx context.Context, id string) (packet.Packet, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return packet.Packet{}, notFound(err)
	}

	var p packet.Packet
	if c.State.Terminal() {
		p, err = s.assembler.Seal(ctx, c)
	} else {
		p, err = s.assembler.Assemble(ctx, c)
	}
	if err != nil {
		return packet.Packet{}, err
	}
	if err := s.auditLog.Record(ctx, audit.Entry{
		Actor:   "api",
		Action:  audit.ActionPacketAssembled,
		Subject: id,
		Outcome: p.Status,
	}); err != nil {
		return packet.Packet{}, dErrors.Wrap(dErrors.CodeInternal, "audit packet assembly", err)
	}
	return p, nil
}

// VerifyIntegrity checks a presented packet against the registry.
func (s *Service) VerifyIntegrity(ctx context.Context, p packet.Packet) (packet.VerificationReport, error) {
	report, err := s.assembler.Verify(ctx, p)
	if err != nil {
		return packet.VerificationReport{}, err
	}
	outcome := "valid"
	if !report.Valid {
		outcome = "invalid"
	}
	if err := s.auditLog.Record(ctx, audit.Entry{
		Actor:   "api",
		Action:  audit.ActionPacketVerified,
		Subject: p.CandidateID,
		Outcome: outcome,
		Reason:  strings.Join(report.Reasons, "; "),
	}); err != nil {
		return packet.VerificationReport{}, dErrors.Wrap(dErrors.CodeInternal, "audit packet verification", err)
	}
	return report, nil
}

// VerifyCandidatePacket verifies the sealed packet stored for a candidate.
// Only terminal candidates have one to verify.
func (s *Service) VerifyCandidatePacket(ctx context.Context, id string) (packet.VerificationReport, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return packet.VerificationReport{}, notFound(err)
	}
	if !c.State.Terminal() {
		return packet.VerificationReport{}, dErrors.New(dErrors.CodeInvalidState, "pipeline still running, no packet to verify")
	}
	p, err := s.assembler.Seal(ctx, c)
	if err != nil {
		return packet.VerificationReport{}, err
	}
	return s.VerifyIntegrity(ctx, p)
}

// ExportCredential renders one credential in the requested format.
func (s *Service) ExportCredential(ctx context.Context, credentialID string, format registry.ExportFormat) (registry.Export, error) {
	vc, err := s.registry.FindCredential(ctx, credentialID)
	if err != nil {
		return registry.Export{}, err
	}
	return s.registry.ExportCredential(vc, format)
}

// RevokeCredential revokes a credential. Idempotent.
func (s *Service) RevokeCredential(ctx context.Context, credentialID, reason string) (registry.RevocationRecord, error) {
	rec, err := s.registry.RevokeCredential(ctx, credentialID, reason)
	if err != nil {
		return registry.RevocationRecord{}, err
	}
	if err := s.auditLog.Record(ctx, audit.Entry{
		Actor:   "api",
		Action:  audit.ActionCredentialRevoked,
		Subject: credentialID,
		Reason:  reason,
	}); err != nil {
		return registry.RevocationRecord{}, dErrors.Wrap(dErrors.CodeInternal, "audit revocation", err)
	}
	return rec, nil
}

// Stats aggregates candidate counts by state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		return Stats{}, dErrors.Wrap(dErrors.CodeInternal, "count candidates", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return Stats{ByState: counts, Total: total}, nil
}

// AuditTrail lists audit entries, optionally filtered by subject.
func (s *Service) AuditTrail(ctx context.Context, subject string, limit int) ([]audit.Entry, error) {
	return s.auditLog.List(ctx, subject, limit)
}

// Shutdown stops all running pipelines.
func (s *Service) Shutdown() {
	s.runner.Shutdown()
}

func (s *Service) statusOf(c candidate.Candidate) Status {
	return Status{
		CandidateID:     c.ID,
		Subject:         c.SubjectDID,
		State:           c.State,
		FinalStatus:     c.FinalStatus(),
		StageResults:    c.StageResults,
		PendingQuestion: c.PendingQuestion,
	}
}

func notFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "candidate not found")
	}
	return dErrors.Wrap(dErrors.CodeInternal, "load candidate", err)
}
