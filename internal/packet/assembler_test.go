package packet

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velos/internal/candidate"
	"velos/internal/registry"
	dErrors "velos/pkg/domain-errors"
	"velos/pkg/platform/sentinel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fixture struct {
	registry  *registry.Registry
	assembler *Assembler
	candidate candidate.Candidate
	vc        registry.VerifiableCredential
}

func newFixture(t *testing.T, state candidate.State) fixture {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	reg := registry.New("packet-secret", registry.NewInMemoryCredentialStore(), registry.NewInMemoryRevocationStore(), nil, logger)
	issuer, err := reg.CreateDID(ctx, registry.DIDKindAgent, "gatekeeper", nil)
	require.NoError(t, err)
	subject, err := reg.CreateDID(ctx, registry.DIDKindCandidate, "candidate", nil)
	require.NoError(t, err)

	vc, err := reg.IssueCredential(ctx, issuer.DID, subject.DID, registry.CredentialEligibility, registry.ClaimSet{
		Eligibility: &registry.EligibilityClaims{Eligible: true, ExperienceYears: 4},
	})
	require.NoError(t, err)

	c := candidate.Candidate{
		ID:         "cand-1",
		SubjectDID: subject.DID,
		State:      state,
		StageResults: []candidate.StageResult{
			{Stage: candidate.StageGatekeeper, Status: candidate.StagePassed, Score: 1},
		},
		CreatedAt: time.Now(),
	}
	return fixture{
		registry:  reg,
		assembler: NewAssembler(reg, "packet-secret", NewInMemoryStore(), nil, logger),
		candidate: c,
		vc:        vc,
	}
}

func TestAssembleTerminalPacketVerifies(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	p, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)
	assert.Equal(t, "verified", p.Status)
	assert.True(t, p.Complete())
	assert.Len(t, p.IntegrityHash, 64)
	require.Len(t, p.Credentials, 1)

	report, err := f.assembler.Verify(ctx, p)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.True(t, report.HashValid)
	assert.True(t, report.SignatureValid)
	require.Len(t, report.Credentials, 1)
	assert.True(t, report.Credentials[0].Valid)
}

func TestAssembleNonTerminalPacketIsUnsigned(t *testing.T) {
	f := newFixture(t, candidate.StateValidatorRunning)

	p, err := f.assembler.Assemble(context.Background(), f.candidate)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", p.Status)
	assert.False(t, p.Complete())
	assert.NotEmpty(t, p.IntegrityHash)

	report, err := f.assembler.Verify(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.True(t, report.HashValid)
	assert.Contains(t, report.Reasons, "packet is unsigned")
}

func TestVerifyDetectsSingleByteMutation(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	p, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)

	tampered := p
	tampered.StageResults = append([]candidate.StageResult(nil), p.StageResults...)
	tampered.StageResults[0].Score = 2

	report, err := f.assembler.Verify(ctx, tampered)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.False(t, report.HashValid)
	assert.Contains(t, report.Reasons, "integrity hash mismatch")
}

func TestVerifyDetectsForgedSignature(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	p, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)

	forged := p
	forged.Signature = "deadbeef"

	report, err := f.assembler.Verify(ctx, forged)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.True(t, report.HashValid)
	assert.False(t, report.SignatureValid)
}

func TestVerifyFailsAfterCredentialRevocation(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	p, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)

	_, err = f.registry.RevokeCredential(ctx, f.vc.ID, "fraud detected")
	require.NoError(t, err)

	report, err := f.assembler.Verify(ctx, p)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.True(t, report.HashValid)
	assert.True(t, report.SignatureValid)
	require.Len(t, report.Credentials, 1)
	assert.True(t, report.Credentials[0].Revoked)
}

func TestAssembleIsDeterministicForSameCandidate(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	frozen := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	f.assembler.now = func() time.Time { return frozen }

	first, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)
	second, err := f.assembler.Assemble(ctx, f.candidate)
	require.NoError(t, err)

	assert.Equal(t, first.IntegrityHash, second.IntegrityHash)
	assert.Equal(t, first.Signature, second.Signature)
}

func TestSealIsImmutableAcrossCalls(t *testing.T) {
	f := newFixture(t, candidate.StateCompleted)
	ctx := context.Background()

	first, err := f.assembler.Seal(ctx, f.candidate)
	require.NoError(t, err)
	require.True(t, first.Complete())

	// No frozen clock: the second call must return the stored artifact, not
	// re-stamp a new one.
	second, err := f.assembler.Seal(ctx, f.candidate)
	require.NoError(t, err)

	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, first.IntegrityHash, second.IntegrityHash)
	assert.Equal(t, first.Signature, second.Signature)
}

func TestSealRejectsNonTerminalCandidate(t *testing.T) {
	f := newFixture(t, candidate.StateValidatorRunning)

	_, err := f.assembler.Seal(context.Background(), f.candidate)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidState, dErrors.CodeOf(err))
}

func TestSealAbortedStoresUnsignedPacket(t *testing.T) {
	f := newFixture(t, candidate.StateAborted)
	ctx := context.Background()

	first, err := f.assembler.Seal(ctx, f.candidate)
	require.NoError(t, err)
	assert.False(t, first.Complete())

	second, err := f.assembler.Seal(ctx, f.candidate)
	require.NoError(t, err)
	assert.Equal(t, first.IntegrityHash, second.IntegrityHash)
}

func TestStoreRejectsSecondWrite(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Packet{CandidateID: "cand-1", IntegrityHash: "aa"}))
	err := store.Put(ctx, Packet{CandidateID: "cand-1", IntegrityHash: "bb"})
	assert.True(t, errors.Is(err, sentinel.ErrConflict))

	got, err := store.Get(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "aa", got.IntegrityHash)
}
