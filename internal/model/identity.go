package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// RequestIdentity is the request-scoped attribution key used by admission
// control. The credential is stored only as a short hash, never in plaintext.
type RequestIdentity struct {
	RemoteAddr     string
	CredentialHash string
	TenantID       string
}

// NewRequestIdentity derives an identity from the raw network address, the
// raw credential (API key or bearer token) and the tenant identifier. An
// empty credential hashes to the literal "anonymous".
func NewRequestIdentity(remoteAddr, credential, tenantID string) RequestIdentity {
	return RequestIdentity{
		RemoteAddr:     remoteAddr,
		CredentialHash: HashCredential(credential),
		TenantID:       tenantID,
	}
}

// HashCredential reduces a raw credential to a stable, log-safe identifier.
func HashCredential(credential string) string {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("key_%x", sum[:8])
}
