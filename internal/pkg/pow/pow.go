/*
Package pow implements the proof-of-work gate that protects unauthenticated
account registration from scripted abuse.

A client first fetches a challenge nonce, brute-forces a counter whose
SHA256(nonce+counter) hash carries the required number of leading zeros, and
exchanges the solution for a short-lived proof token. The token is single-use:
it is consumed by the registration request it authorizes.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the proof token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for a proof token.
	ProofTokenDuration = 2 * time.Minute

	// NonceExpiryDuration is the validity period for a challenge nonce.
	NonceExpiryDuration = 5 * time.Minute
)

// Manager issues challenge nonces and validates submitted solutions.
// It is concurrent-safe, using internal maps to store active nonces and tokens.
type Manager struct {
	// difficulty is the required number of leading zeros in the solution hash.
	difficulty int

	// nonceStore stores active nonces and their expiration times.
	nonceStore map[string]time.Time

	// tokenStore stores issued proof tokens and their expiration times.
	tokenStore map[string]time.Time

	// mu protects concurrent access to nonceStore and tokenStore.
	mu sync.Mutex
}

// NewManager creates a Manager with the given challenge difficulty and starts
// a background goroutine that cleans up expired entries.
func NewManager(difficulty int) *Manager {
	mgr := &Manager{
		difficulty: difficulty,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
	}

	go mgr.cleanupExpiredEntries()

	return mgr
}

// Difficulty returns the configured leading-zero requirement, sent to clients
// alongside the nonce so they know how hard the challenge is.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce creates and stores a unique challenge nonce.
func (m *Manager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = time.Now().Add(NonceExpiryDuration)
	return nonce
}

// ValidateProof checks a submitted solution. The nonce must be live and the
// SHA256 hash of nonce+counter must carry the required leading zeros. On
// success the nonce is consumed and a single-use proof token is issued.
func (m *Manager) ValidateProof(nonce, counter string) (string, error) {
	input := fmt.Sprintf("%s%s", nonce, counter)
	hash := sha256.Sum256([]byte(input))
	hashStr := hex.EncodeToString(hash[:])

	requiredPrefix := strings.Repeat("0", m.difficulty)
	if !strings.HasPrefix(hashStr, requiredPrefix) {
		return "", fmt.Errorf("proof does not meet difficulty requirement")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.nonceStore[nonce]
	if !ok || time.Now().After(expiryTime) {
		return "", fmt.Errorf("nonce expired or invalid")
	}

	delete(m.nonceStore, nonce)

	token := uuid.New().String()
	m.tokenStore[token] = time.Now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken checks whether the request carries a live proof token in
// the X-PoW-Token header and, if so, consumes it. Each token authorizes
// exactly one request.
func (m *Manager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	if !ok {
		return false
	}

	delete(m.tokenStore, token)

	return !time.Now().After(expiryTime)
}

// cleanupExpiredEntries periodically removes expired nonces and tokens.
func (m *Manager) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()

		for nonce, expiry := range m.nonceStore {
			if now.After(expiry) {
				delete(m.nonceStore, nonce)
			}
		}

		for token, expiry := range m.tokenStore {
			if now.After(expiry) {
				delete(m.tokenStore, token)
			}
		}
		m.mu.Unlock()
	}
}
