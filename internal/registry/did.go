// Package registry owns decentralized identifiers, verifiable credential
// issuance, verification, and revocation. Its signing key and revocation
// list are the only mutable state shared across concurrent candidate
// pipelines; every mutation goes through the registry mutex.
package registry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DIDKind namespaces identifiers: screening agents vs. candidates.
type DIDKind string

const (
	DIDKindAgent     DIDKind = "agent"
	DIDKindCandidate DIDKind = "candidate"
)

// DID is an opaque identity handle: did:velos:{kind}:{128-bit hex suffix}.
// Created once, never reused.
type DID string

// NewDID mints a DID under the deterministic namespace prefix with a random
// 128-bit suffix.
func NewDID(kind DIDKind) DID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return DID("did:velos:" + string(kind) + ":" + suffix)
}

// Kind extracts the namespace, or "" for malformed values.
func (d DID) Kind() DIDKind {
	parts := strings.Split(string(d), ":")
	if len(parts) != 4 || parts[0] != "did" || parts[1] != "velos" {
		return ""
	}
	return DIDKind(parts[2])
}

// Valid reports whether the DID is well-formed.
func (d DID) Valid() bool {
	k := d.Kind()
	return k == DIDKindAgent || k == DIDKindCandidate
}

func (d DID) String() string { return string(d) }

// DIDRecord is the registry's view of a minted identity.
type DIDRecord struct {
	DID          DID       `json:"did"`
	Kind         DIDKind   `json:"kind"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
