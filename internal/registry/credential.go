package registry

import (
	"time"
)

// CredentialType identifies which pipeline stage issued a credential.
type CredentialType string

const (
	CredentialEligibility  CredentialType = "EligibilityCredential"
	CredentialSkillMatch   CredentialType = "SkillMatchCredential"
	CredentialAuthenticity CredentialType = "AuthenticityCredential"
)

// EligibilityClaims are issued by the gatekeeper stage.
type EligibilityClaims struct {
	Eligible        bool    `json:"eligible"`
	ExperienceYears float64 `json:"experience_years"`
	Reason          string  `json:"reason,omitempty"`
}

// SkillMatchClaims are issued by the skill matching stage.
type SkillMatchClaims struct {
	Score         float64  `json:"score"`
	MatchedSkills []string `json:"matched_skills,omitempty"`
	MissingSkills []string `json:"missing_skills,omitempty"`
}

// AuthenticityClaims are issued by the interrogation stage.
type AuthenticityClaims struct {
	TrustScore     float64 `json:"trust_score"`
	QuestionsAsked int     `json:"questions_asked"`
	AnswersSummary string  `json:"answers_summary,omitempty"`
}

// ClaimSet is a tagged union over the per-stage claim shapes. Exactly one
// field is set, matching the credential type; Other carries forward-compatible
// payloads that the registry signs but does not interpret.
type ClaimSet struct {
	Eligibility  *EligibilityClaims  `json:"eligibility,omitempty"`
	SkillMatch   *SkillMatchClaims   `json:"skill_match,omitempty"`
	Authenticity *AuthenticityClaims `json:"authenticity,omitempty"`
	Other        map[string]any      `json:"other,omitempty"`
}

// Proof is the cryptographic attestation attached to every credential.
// SignatureValue is HMAC-SHA256 over the canonical credential payload; the
// advertised type string is kept for document-shape compatibility even though
// the scheme is symmetric. Verifiers must hold the issuer secret.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	SignatureValue     string    `json:"signatureValue"`
}

const proofType = "EcdsaSecp256k1Signature2019"

// VerifiableCredential is an issued, signed stage attestation.
type VerifiableCredential struct {
	ID           string         `json:"id"`
	Type         CredentialType `json:"type"`
	Issuer       DID            `json:"issuer"`
	Subject      DID            `json:"subject"`
	Claims       ClaimSet       `json:"claims"`
	IssuanceDate time.Time      `json:"issuanceDate"`
	Proof        Proof          `json:"proof"`
}

// RevocationRecord captures one revocation. Revoking twice returns the
// original record unchanged.
type RevocationRecord struct {
	CredentialID string    `json:"credential_id"`
	Reason       string    `json:"reason"`
	RevokedAt    time.Time `json:"revoked_at"`
}

// VerificationResult is the outcome of checking a credential's proof against
// the registry. Reason is set only when Valid is false.
type VerificationResult struct {
	Valid            bool   `json:"valid"`
	IssuerRegistered bool   `json:"issuer_registered"`
	Revoked          bool   `json:"revoked"`
	Reason           string `json:"reason,omitempty"`
}
