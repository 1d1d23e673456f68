package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// solve brute-forces a counter for the nonce at the given difficulty.
func solve(nonce string, difficulty int) string {
	prefix := strings.Repeat("0", difficulty)
	for i := 0; ; i++ {
		counter := fmt.Sprintf("%d", i)
		hash := sha256.Sum256([]byte(nonce + counter))
		if strings.HasPrefix(hex.EncodeToString(hash[:]), prefix) {
			return counter
		}
	}
}

func TestValidateProofIssuesToken(t *testing.T) {
	mgr := NewManager(1)

	nonce := mgr.GenerateNonce()
	counter := solve(nonce, 1)

	token, err := mgr.ValidateProof(nonce, counter)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestValidateProofRejectsBadSolution(t *testing.T) {
	mgr := NewManager(4)

	nonce := mgr.GenerateNonce()

	_, err := mgr.ValidateProof(nonce, "definitely-not-a-solution")
	require.Error(t, err)
}

func TestValidateProofConsumesNonce(t *testing.T) {
	mgr := NewManager(1)

	nonce := mgr.GenerateNonce()
	counter := solve(nonce, 1)

	_, err := mgr.ValidateProof(nonce, counter)
	require.NoError(t, err)

	_, err = mgr.ValidateProof(nonce, counter)
	require.Error(t, err, "a nonce must not be solvable twice")
}

func TestValidateProofRejectsUnknownNonce(t *testing.T) {
	mgr := NewManager(1)

	_, err := mgr.ValidateProof("never-issued", solve("never-issued", 1))
	require.Error(t, err)
}

func TestProofTokenIsSingleUse(t *testing.T) {
	mgr := NewManager(1)

	nonce := mgr.GenerateNonce()
	token, err := mgr.ValidateProof(nonce, solve(nonce, 1))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/auth/register", nil)
	r.Header.Set(TokenHeaderKey, token)

	require.True(t, mgr.ConsumeProofToken(r))
	require.False(t, mgr.ConsumeProofToken(r), "a token must authorize exactly one request")
}

func TestConsumeProofTokenWithoutHeader(t *testing.T) {
	mgr := NewManager(1)

	r := httptest.NewRequest("POST", "/api/auth/register", nil)
	require.False(t, mgr.ConsumeProofToken(r))
}
