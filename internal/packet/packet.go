// Package packet assembles the final trust packet: the portable, signed
// summary of one screening run. The packet is content-addressed; any byte of
// drift in its canonical form invalidates the integrity hash.
package packet

import (
	"time"

	"velos/internal/candidate"
	"velos/internal/redact"
	"velos/internal/registry"
)

// Version tags the packet schema.
const Version = "1.0"

// Packet is the assembled trust packet. IntegrityHash covers the canonical
// form of everything except itself and Signature. Signature is present only
// on packets assembled at a terminal state.
type Packet struct {
	Version      string                          `json:"version"`
	CandidateID  string                          `json:"candidate_id"`
	Subject      registry.DID                    `json:"subject"`
	Status       string                          `json:"status"`
	GeneratedAt  time.Time                       `json:"generated_at"`
	DiffReport   redact.DiffReport               `json:"diff_report"`
	StageResults []candidate.StageResult         `json:"stage_results"`
	Credentials  []registry.VerifiableCredential `json:"credentials"`

	IntegrityHash string `json:"integrity_hash"`
	Signature     string `json:"signature,omitempty"`
}

// Complete reports whether the packet was sealed at a terminal state.
func (p Packet) Complete() bool { return p.Signature != "" }

// VerificationReport is the result of checking a packet. Valid is true only
// when every individual check passed.
type VerificationReport struct {
	Valid          bool              `json:"valid"`
	HashValid      bool              `json:"hash_valid"`
	SignatureValid bool              `json:"signature_valid"`
	Credentials    []CredentialCheck `json:"credentials"`
	Reasons        []string          `json:"reasons,omitempty"`
}

// CredentialCheck is one credential's verification outcome inside a packet.
type CredentialCheck struct {
	CredentialID string `json:"credential_id"`
	Valid        bool   `json:"valid"`
	Revoked      bool   `json:"revoked"`
	Reason       string `json:"reason,omitempty"`
}
