package packet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"velos/internal/candidate"
	"velos/internal/platform/metrics"
	"velos/internal/registry"
	"velos/pkg/canonical"
	dErrors "velos/pkg/domain-errors"
	"velos/pkg/platform/sentinel"
)

// Assembler builds and verifies trust packets. It shares the issuer secret
// with the credential registry so a single key seals the whole run.
type Assembler struct {
	registry *registry.Registry
	secret   []byte
	store    Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewAssembler(reg *registry.Registry, secret string, store Store, m *metrics.Metrics, logger *slog.Logger) *Assembler {
	return &Assembler{
		registry: reg,
		secret:   []byte(secret),
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Assemble builds the packet for a candidate from its recorded stage results
// and issued credentials. Non-terminal candidates get a partial packet:
// hashed, but unsigned.
func (a *Assembler) Assemble(ctx context.Context, c candidate.Candidate) (Packet, error) {
	creds, err := a.registry.CredentialsForSubject(ctx, c.SubjectDID)
	if err != nil {
		return Packet{}, dErrors.Wrap(dErrors.CodeInternal, "load credentials", err)
	}

	p := Packet{
		Version:      Version,
		CandidateID:  c.ID,
		Subject:      c.SubjectDID,
		Status:       c.FinalStatus(),
		GeneratedAt:  a.now().UTC(),
		DiffReport:   c.DiffReport,
		StageResults: c.StageResults,
		Credentials:  creds,
	}

	hash, err := a.hash(p)
	if err != nil {
		return Packet{}, dErrors.Wrap(dErrors.CodeInternal, "hash packet", err)
	}
	p.IntegrityHash = hash

	// Aborted runs never get a sealed packet; they stay partial forever.
	if c.State.Terminal() && c.State != candidate.StateAborted {
		p.Signature = a.sign(hash)
	}

	a.logger.InfoContext(ctx, "trust packet assembled",
		"candidate_id", c.ID,
		"status", p.Status,
		"complete", p.Complete(),
		"credentials", len(creds),
	)
	return p, nil
}

// Seal fixes the packet for a terminal candidate. The first call assembles
// and stores it; every later call returns the stored artifact untouched, so
// the integrity hash and signature never change after sealing.
func (a *Assembler) Seal(ctx context.Context, c candidate.Candidate) (Packet, error) {
	stored, err := a.store.Get(ctx, c.ID)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Packet{}, dErrors.Wrap(dErrors.CodeInternal, "load packet", err)
	}
	if !c.State.Terminal() {
		return Packet{}, dErrors.New(dErrors.CodeInvalidState, "candidate has not reached a terminal state")
	}

	p, err := a.Assemble(ctx, c)
	if err != nil {
		return Packet{}, err
	}
	if err := a.store.Put(ctx, p); err != nil {
		// Lost the race to another sealer; theirs is the artifact.
		if errors.Is(err, sentinel.ErrConflict) {
			return a.store.Get(ctx, c.ID)
		}
		return Packet{}, dErrors.Wrap(dErrors.CodeInternal, "store packet", err)
	}
	if a.metrics != nil {
		a.metrics.PacketsAssembled.Inc()
	}
	return p, nil
}

// Verify checks the packet end to end: the integrity hash over its canonical
// content, the packet signature, and every embedded credential's proof and
// revocation status. Nothing is repaired; a tampered packet is reported as-is.
func (a *Assembler) Verify(ctx context.Context, p Packet) (VerificationReport, error) {
	report := VerificationReport{}

	expected, err := a.hash(p)
	if err != nil {
		return VerificationReport{}, dErrors.Wrap(dErrors.CodeInternal, "hash packet", err)
	}
	report.HashValid = expected == p.IntegrityHash
	if !report.HashValid {
		report.Reasons = append(report.Reasons, "integrity hash mismatch")
	}

	switch {
	case p.Signature == "":
		report.SignatureValid = false
		report.Reasons = append(report.Reasons, "packet is unsigned")
	case hmac.Equal([]byte(a.sign(p.IntegrityHash)), []byte(p.Signature)):
		report.SignatureValid = true
	default:
		report.SignatureValid = false
		report.Reasons = append(report.Reasons, "signature mismatch")
	}

	credsOK := true
	for _, vc := range p.Credentials {
		result, err := a.registry.VerifyCredential(ctx, vc)
		if err != nil {
			return VerificationReport{}, err
		}
		check := CredentialCheck{
			CredentialID: vc.ID,
			Valid:        result.Valid,
			Revoked:      result.Revoked,
			Reason:       result.Reason,
		}
		report.Credentials = append(report.Credentials, check)
		if !result.Valid {
			credsOK = false
			report.Reasons = append(report.Reasons, fmt.Sprintf("credential %s: %s", vc.ID, result.Reason))
		}
	}

	report.Valid = report.HashValid && report.SignatureValid && credsOK
	if a.metrics != nil {
		outcome := "valid"
		if !report.Valid {
			outcome = "invalid"
		}
		a.metrics.PacketVerifications.WithLabelValues(outcome).Inc()
	}
	return report, nil
}

// hash computes SHA-256 over the canonical packet content, excluding the
// integrity hash and signature fields themselves.
func (a *Assembler) hash(p Packet) (string, error) {
	p.IntegrityHash = ""
	p.Signature = ""
	content, err := canonical.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func (a *Assembler) sign(hash string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(hash))
	return hex.EncodeToString(mac.Sum(nil))
}
