package registry

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"velos/internal/platform/metrics"
	"velos/pkg/canonical"
	dErrors "velos/pkg/domain-errors"
	"velos/pkg/platform/sentinel"
)

// CredentialStore persists issued credentials. FindBySubject returns them in
// issuance order.
type CredentialStore interface {
	Save(ctx context.Context, vc VerifiableCredential) error
	FindByID(ctx context.Context, id string) (VerifiableCredential, error)
	FindBySubject(ctx context.Context, subject DID) ([]VerifiableCredential, error)
}

// RevocationStore persists revocation records. Get returns
// sentinel.ErrNotFound for credentials that have not been revoked.
type RevocationStore interface {
	Put(ctx context.Context, rec RevocationRecord) error
	Get(ctx context.Context, credentialID string) (RevocationRecord, error)
}

// Registry issues, verifies, and revokes credentials under a single issuer
// secret. All mutations hold the registry mutex so issuance timestamps stay
// strictly monotonic per subject.
type Registry struct {
	mu          sync.Mutex
	secret      []byte
	dids        map[DID]DIDRecord
	lastIssued  map[DID]time.Time
	credentials CredentialStore
	revocations RevocationStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func New(secret string, credentials CredentialStore, revocations RevocationStore, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		secret:      []byte(secret),
		dids:        make(map[DID]DIDRecord),
		lastIssued:  make(map[DID]time.Time),
		credentials: credentials,
		revocations: revocations,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateDID mints and registers a new identity.
func (r *Registry) CreateDID(_ context.Context, kind DIDKind, name string, capabilities []string) (DIDRecord, error) {
	if kind != DIDKindAgent && kind != DIDKindCandidate {
		return DIDRecord{}, dErrors.New(dErrors.CodeInvalidInput, "unknown DID kind")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := DIDRecord{
		DID:          NewDID(kind),
		Kind:         kind,
		Name:         name,
		Capabilities: capabilities,
		CreatedAt:    r.now().UTC(),
	}
	r.dids[rec.DID] = rec
	return rec, nil
}

// Resolve returns the record for a registered DID.
func (r *Registry) Resolve(_ context.Context, did DID) (DIDRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.dids[did]
	if !ok {
		return DIDRecord{}, dErrors.New(dErrors.CodeNotFound, "DID not registered")
	}
	return rec, nil
}

// IssueCredential signs a claim set from issuer to subject. Issuance dates
// for the same subject are strictly increasing even when two credentials are
// issued inside the same clock tick.
func (r *Registry) IssueCredential(ctx context.Context, issuer, subject DID, credType CredentialType, claims ClaimSet) (VerifiableCredential, error) {
	r.mu.Lock()
	issuerRec, ok := r.dids[issuer]
	if !ok {
		r.mu.Unlock()
		return VerifiableCredential{}, dErrors.New(dErrors.CodeInvalidInput, "issuer DID not registered")
	}
	if issuerRec.Kind != DIDKindAgent {
		r.mu.Unlock()
		return VerifiableCredential{}, dErrors.New(dErrors.CodeInvalidInput, "only agent DIDs may issue credentials")
	}
	if !subject.Valid() {
		r.mu.Unlock()
		return VerifiableCredential{}, dErrors.New(dErrors.CodeInvalidInput, "malformed subject DID")
	}

	issuedAt := r.now().UTC()
	if last, ok := r.lastIssued[subject]; ok && !issuedAt.After(last) {
		issuedAt = last.Add(time.Nanosecond)
	}
	r.lastIssued[subject] = issuedAt
	r.mu.Unlock()

	vc := VerifiableCredential{
		ID:           "vc-" + uuid.NewString(),
		Type:         credType,
		Issuer:       issuer,
		Subject:      subject,
		Claims:       claims,
		IssuanceDate: issuedAt,
	}
	sig, err := r.sign(vc)
	if err != nil {
		return VerifiableCredential{}, dErrors.Wrap(dErrors.CodeInternal, "sign credential", err)
	}
	vc.Proof = Proof{
		Type:               proofType,
		Created:            issuedAt,
		VerificationMethod: issuer.String() + "#key-1",
		ProofPurpose:       "assertionMethod",
		SignatureValue:     sig,
	}

	if err := r.credentials.Save(ctx, vc); err != nil {
		return VerifiableCredential{}, dErrors.Wrap(dErrors.CodeInternal, "store credential", err)
	}
	if r.metrics != nil {
		r.metrics.CredentialsIssued.WithLabelValues(string(credType)).Inc()
	}
	r.logger.InfoContext(ctx, "credential issued",
		"credential_id", vc.ID,
		"type", credType,
		"subject", subject,
	)
	return vc, nil
}

// VerifyCredential recomputes the proof and checks revocation. Verification
// never mutates anything; a revoked or tampered credential is reported, not
// repaired.
func (r *Registry) VerifyCredential(ctx context.Context, vc VerifiableCredential) (VerificationResult, error) {
	result := VerificationResult{}

	r.mu.Lock()
	issuerRec, registered := r.dids[vc.Issuer]
	r.mu.Unlock()
	result.IssuerRegistered = registered && issuerRec.Kind == DIDKindAgent

	if !result.IssuerRegistered {
		result.Reason = "issuer not registered"
		return result, nil
	}

	expected, err := r.sign(vc)
	if err != nil {
		return VerificationResult{}, dErrors.Wrap(dErrors.CodeInternal, "recompute proof", err)
	}
	if !hmac.Equal([]byte(expected), []byte(vc.Proof.SignatureValue)) {
		result.Reason = "signature mismatch"
		return result, nil
	}

	if _, err := r.revocations.Get(ctx, vc.ID); err == nil {
		result.Revoked = true
		result.Reason = "credential revoked"
		return result, nil
	} else if !isNotFound(err) {
		return VerificationResult{}, dErrors.Wrap(dErrors.CodeInternal, "revocation lookup", err)
	}

	result.Valid = true
	return result, nil
}

// RevokeCredential marks a credential revoked. Idempotent: revoking an
// already-revoked credential returns the original record and changes nothing.
func (r *Registry) RevokeCredential(ctx context.Context, credentialID, reason string) (RevocationRecord, error) {
	if _, err := r.credentials.FindByID(ctx, credentialID); err != nil {
		if isNotFound(err) {
			return RevocationRecord{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return RevocationRecord{}, dErrors.Wrap(dErrors.CodeInternal, "credential lookup", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.revocations.Get(ctx, credentialID); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return RevocationRecord{}, dErrors.Wrap(dErrors.CodeInternal, "revocation lookup", err)
	}

	rec := RevocationRecord{
		CredentialID: credentialID,
		Reason:       reason,
		RevokedAt:    r.now().UTC(),
	}
	if err := r.revocations.Put(ctx, rec); err != nil {
		return RevocationRecord{}, dErrors.Wrap(dErrors.CodeInternal, "store revocation", err)
	}
	if r.metrics != nil {
		r.metrics.CredentialsRevoked.Inc()
	}
	r.logger.InfoContext(ctx, "credential revoked", "credential_id", credentialID, "reason", reason)
	return rec, nil
}

// IsRevoked reports whether a credential has a revocation record.
func (r *Registry) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	if _, err := r.revocations.Get(ctx, credentialID); err == nil {
		return true, nil
	} else if !isNotFound(err) {
		return false, err
	}
	return false, nil
}

// CredentialsForSubject returns the subject's credentials in issuance order.
func (r *Registry) CredentialsForSubject(ctx context.Context, subject DID) ([]VerifiableCredential, error) {
	return r.credentials.FindBySubject(ctx, subject)
}

// FindCredential returns one credential by id.
func (r *Registry) FindCredential(ctx context.Context, id string) (VerifiableCredential, error) {
	vc, err := r.credentials.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return VerifiableCredential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return VerifiableCredential{}, err
	}
	return vc, nil
}

// signingPayload is the subset of credential fields covered by the proof.
// The proof itself is excluded so verification can recompute it.
type signingPayload struct {
	Issuer       string   `json:"issuer"`
	Subject      string   `json:"subject"`
	Type         string   `json:"type"`
	Claims       ClaimSet `json:"claims"`
	IssuanceDate string   `json:"issuanceDate"`
}

// sign computes the HMAC-SHA256 proof over the canonical credential payload.
func (r *Registry) sign(vc VerifiableCredential) (string, error) {
	payload, err := canonical.Marshal(signingPayload{
		Issuer:       vc.Issuer.String(),
		Subject:      vc.Subject.String(),
		Type:         string(vc.Type),
		Claims:       vc.Claims,
		IssuanceDate: vc.IssuanceDate.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}
