package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"velos/internal/audit"
	"velos/internal/candidate"
	"velos/internal/packet"
	"velos/internal/platform/metrics"
	"velos/internal/registry"
	"velos/pkg/platform/sentinel"
)

// Runner drives one goroutine per candidate through the stage state machine.
// All candidate mutations go through the store's Update so status reads are
// always consistent.
type Runner struct {
	store        candidate.Store
	gatekeeper   *Gatekeeper
	skillMatcher *SkillMatcher
	interrogator *Interrogator
	assembler    *packet.Assembler
	auditLog     *audit.Log
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer

	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	group    errgroup.Group
}

func NewRunner(store candidate.Store, gk *Gatekeeper, sm *SkillMatcher, in *Interrogator, assembler *packet.Assembler, auditLog *audit.Log, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		store:        store,
		gatekeeper:   gk,
		skillMatcher: sm,
		interrogator: in,
		assembler:    assembler,
		auditLog:     auditLog,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("velos/pipeline"),
		sessions:     make(map[string]*Session),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Launch starts the pipeline for a stored candidate. The run detaches from
// the caller's context; Abort or Shutdown cancels it.
func (r *Runner) Launch(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession()

	r.mu.Lock()
	r.sessions[id] = session
	r.cancels[id] = cancel
	r.mu.Unlock()

	r.group.Go(func() error {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.sessions, id)
			delete(r.cancels, id)
			r.mu.Unlock()
		}()
		r.run(ctx, id, session)
		return nil
	})
}

// SessionFor returns the live interrogation session for a candidate.
func (r *Runner) SessionFor(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Abort cancels a running pipeline. No-op for finished candidates.
func (r *Runner) Abort(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels every running pipeline and waits for them to record their
// terminal states.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	_ = r.group.Wait()
}

func (r *Runner) run(ctx context.Context, id string, session *Session) {
	if !r.runGatekeeper(ctx, id) {
		return
	}
	if !r.runSkillMatcher(ctx, id) {
		return
	}
	if !r.runInterrogator(ctx, id, session) {
		return
	}
	r.complete(ctx, id)
}

func (r *Runner) runGatekeeper(ctx context.Context, id string) bool {
	c, ok := r.enterStage(ctx, id, candidate.StateGatekeeperRunning, candidate.StageGatekeeper)
	if !ok {
		return false
	}

	ctx, span := r.tracer.Start(ctx, "stage.gatekeeper",
		trace.WithAttributes(attribute.String("candidate.id", id)))
	started := time.Now()
	out, err := r.gatekeeper.Run(ctx, c)
	span.End()
	r.observeStage(candidate.StageGatekeeper, started)

	if r.aborted(ctx, id, err) {
		return false
	}
	if err != nil {
		r.failStage(ctx, id, candidate.StageGatekeeper, candidate.StateGatekeeperFailed, candidate.StageResult{
			Stage:      candidate.StageGatekeeper,
			Status:     candidate.StageFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, err.Error())
		return false
	}

	result := candidate.StageResult{
		Stage:      candidate.StageGatekeeper,
		Status:     candidate.StagePassed,
		Score:      out.ExperienceYears,
		Claims:     out.Claims,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if !out.Passed {
		result.Status = candidate.StageFailed
		result.Error = out.Reason
	}

	updated, err := r.store.Update(ctx, id, func(c *candidate.Candidate) error {
		c.RedactedText = out.RedactedText
		c.DiffReport = out.DiffReport
		c.CleanToken = out.CleanToken
		c.StageResults = append(c.StageResults, result)
		if out.Passed {
			c.State = candidate.StateValidatorRunning
		} else {
			c.State = candidate.StateGatekeeperFailed
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "gatekeeper state update failed", "candidate_id", id, "error", err)
		return false
	}

	if !out.Passed {
		r.recordStageFailure(ctx, id, candidate.StageGatekeeper, out.Reason, updated.State)
		return false
	}
	r.recordStagePass(ctx, id, candidate.StageGatekeeper, out.Credential)
	return true
}

func (r *Runner) runSkillMatcher(ctx context.Context, id string) bool {
	c, err := r.store.FindByID(ctx, id)
	if err != nil {
		return false
	}
	r.auditStage(ctx, id, candidate.StageSkillMatch, audit.ActionStageStarted, "")

	ctx, span := r.tracer.Start(ctx, "stage.skill_match",
		trace.WithAttributes(attribute.String("candidate.id", id)))
	started := time.Now()
	out, err := r.skillMatcher.Run(ctx, c)
	span.End()
	r.observeStage(candidate.StageSkillMatch, started)

	if r.aborted(ctx, id, err) {
		return false
	}
	if err != nil {
		r.failStage(ctx, id, candidate.StageSkillMatch, candidate.StateValidatorFailed, candidate.StageResult{
			Stage:      candidate.StageSkillMatch,
			Status:     candidate.StageFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, err.Error())
		return false
	}

	result := candidate.StageResult{
		Stage:      candidate.StageSkillMatch,
		Status:     candidate.StagePassed,
		Score:      out.Score,
		Evidence:   out.Evidence,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if !out.Passed {
		result.Status = candidate.StageFailed
		result.Error = out.Reason
	}

	_, err = r.store.Update(ctx, id, func(c *candidate.Candidate) error {
		c.StageResults = append(c.StageResults, result)
		if out.Passed {
			c.State = candidate.StateInquisitorRunning
		} else {
			c.State = candidate.StateValidatorFailed
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "skill match state update failed", "candidate_id", id, "error", err)
		return false
	}

	if !out.Passed {
		r.recordStageFailure(ctx, id, candidate.StageSkillMatch, out.Reason, candidate.StateValidatorFailed)
		return false
	}
	r.recordStagePass(ctx, id, candidate.StageSkillMatch, out.Credential)
	return true
}

func (r *Runner) runInterrogator(ctx context.Context, id string, session *Session) bool {
	c, err := r.store.FindByID(ctx, id)
	if err != nil {
		return false
	}
	r.auditStage(ctx, id, candidate.StageAuthenticity, audit.ActionStageStarted, "")

	onQuestion := func(ctx context.Context, qa candidate.QA) error {
		_, err := r.store.Update(ctx, id, func(c *candidate.Candidate) error {
			c.PendingQuestion = qa.Question
			return nil
		})
		if err != nil {
			return err
		}
		return r.auditLog.Record(ctx, audit.Entry{
			Actor:   candidate.StageAuthenticity,
			Action:  audit.ActionQuestionAsked,
			Subject: id,
			Reason:  qa.ClaimID,
		})
	}

	ctx, span := r.tracer.Start(ctx, "stage.authenticity",
		trace.WithAttributes(attribute.String("candidate.id", id)))
	started := time.Now()
	out, err := r.interrogator.Run(ctx, c, session, onQuestion)
	span.End()
	r.observeStage(candidate.StageAuthenticity, started)

	if r.aborted(ctx, id, err) {
		return false
	}
	if err != nil {
		r.failStage(ctx, id, candidate.StageAuthenticity, candidate.StateInquisitorFailed, candidate.StageResult{
			Stage:      candidate.StageAuthenticity,
			Status:     candidate.StageFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, err.Error())
		return false
	}

	result := candidate.StageResult{
		Stage:      candidate.StageAuthenticity,
		Status:     candidate.StagePassed,
		Score:      out.TrustScore,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if !out.Passed {
		result.Status = candidate.StageFailed
		result.Error = out.Reason
	}

	_, err = r.store.Update(ctx, id, func(c *candidate.Candidate) error {
		c.PendingQuestion = ""
		c.Exchanges = out.Exchanges
		c.StageResults = append(c.StageResults, result)
		if out.Passed {
			c.State = candidate.StateCompleted
		} else {
			c.State = candidate.StateInquisitorFailed
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "interrogation state update failed", "candidate_id", id, "error", err)
		return false
	}

	if !out.Passed {
		action := audit.ActionStageFailed
		if out.TimedOut {
			action = audit.ActionStageTimeout
		}
		r.auditStage(ctx, id, candidate.StageAuthenticity, action, out.Reason)
		r.finish(candidate.StateInquisitorFailed, candidate.StageAuthenticity, candidate.StageFailed)
		r.seal(ctx, id)
		return false
	}
	r.recordStagePass(ctx, id, candidate.StageAuthenticity, out.Credential)
	return true
}

func (r *Runner) complete(ctx context.Context, id string) {
	if r.metrics != nil {
		r.metrics.PipelinesCompleted.WithLabelValues(string(candidate.StateCompleted)).Inc()
	}
	_ = r.auditLog.Record(ctx, audit.Entry{
		Actor:   "pipeline",
		Action:  audit.ActionStagePassed,
		Subject: id,
		Outcome: string(candidate.StateCompleted),
	})
	r.seal(ctx, id)
	r.logger.InfoContext(ctx, "pipeline completed", "candidate_id", id)
}

// seal fixes the trust packet the moment the candidate goes terminal. Reads
// through the status API then always see the same artifact.
func (r *Runner) seal(ctx context.Context, id string) {
	c, err := r.store.FindByID(ctx, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "packet sealing load failed", "candidate_id", id, "error", err)
		return
	}
	if _, err := r.assembler.Seal(ctx, c); err != nil {
		r.logger.ErrorContext(ctx, "packet sealing failed", "candidate_id", id, "error", err)
	}
}

// enterStage moves the candidate into a running state and audits it.
func (r *Runner) enterStage(ctx context.Context, id string, state candidate.State, stage string) (candidate.Candidate, bool) {
	c, err := r.store.Update(ctx, id, func(c *candidate.Candidate) error {
		if c.State.Terminal() {
			return sentinel.ErrInvalidState
		}
		c.State = state
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "stage entry failed", "candidate_id", id, "stage", stage, "error", err)
		return candidate.Candidate{}, false
	}
	r.auditStage(ctx, id, stage, audit.ActionStageStarted, "")
	return c, true
}

// aborted handles cancellation: the candidate moves to ABORTED and no packet
// is ever signed for it.
func (r *Runner) aborted(ctx context.Context, id string, stageErr error) bool {
	if ctx.Err() == nil && !errors.Is(stageErr, context.Canceled) {
		return false
	}
	_, err := r.store.Update(context.Background(), id, func(c *candidate.Candidate) error {
		c.PendingQuestion = ""
		c.State = candidate.StateAborted
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(context.Background(), "abort state update failed", "candidate_id", id, "error", err)
	}
	_ = r.auditLog.Record(context.Background(), audit.Entry{
		Actor:   "pipeline",
		Action:  audit.ActionPipelineAborted,
		Subject: id,
	})
	r.finish(candidate.StateAborted, "", "")
	r.seal(context.Background(), id)
	r.logger.InfoContext(context.Background(), "pipeline aborted", "candidate_id", id)
	return true
}

func (r *Runner) failStage(ctx context.Context, id, stage string, state candidate.State, result candidate.StageResult, reason string) {
	_, err := r.store.Update(ctx, id, func(c *candidate.Candidate) error {
		c.StageResults = append(c.StageResults, result)
		c.State = state
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "stage failure update failed", "candidate_id", id, "stage", stage, "error", err)
	}
	r.auditStage(ctx, id, stage, audit.ActionStageFailed, reason)
	r.finish(state, stage, candidate.StageFailed)
	r.seal(ctx, id)
}

func (r *Runner) recordStageFailure(ctx context.Context, id, stage, reason string, state candidate.State) {
	r.auditStage(ctx, id, stage, audit.ActionStageFailed, reason)
	r.finish(state, stage, candidate.StageFailed)
	r.seal(ctx, id)
}

func (r *Runner) recordStagePass(ctx context.Context, id, stage string, vc *registry.VerifiableCredential) {
	r.auditStage(ctx, id, stage, audit.ActionStagePassed, "")
	if vc != nil {
		_ = r.auditLog.Record(ctx, audit.Entry{
			Actor:   stage,
			Action:  audit.ActionCredentialIssued,
			Subject: vc.ID,
			Outcome: string(vc.Type),
		})
	}
	if r.metrics != nil {
		r.metrics.StageOutcomes.WithLabelValues(stage, string(candidate.StagePassed)).Inc()
	}
}

func (r *Runner) auditStage(ctx context.Context, id, stage, action, reason string) {
	_ = r.auditLog.Record(ctx, audit.Entry{
		Actor:   stage,
		Action:  action,
		Subject: id,
		Reason:  reason,
	})
}

func (r *Runner) finish(state candidate.State, stage string, status candidate.StageStatus) {
	if r.metrics == nil {
		return
	}
	r.metrics.PipelinesCompleted.WithLabelValues(string(state)).Inc()
	if stage != "" {
		r.metrics.StageOutcomes.WithLabelValues(stage, string(status)).Inc()
	}
}

func (r *Runner) observeStage(stage string, started time.Time) {
	if r.metrics != nil {
		r.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	}
}
