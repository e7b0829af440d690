package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAndVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"verification_id":"abc","status":"verified"}`)

	header := Compute("shared-secret", payload)

	require.True(t, strings.HasPrefix(header, "sha256="))
	assert.True(t, Verify("shared-secret", payload, header))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"status":"verified"}`)
	header := Compute("secret-a", payload)

	assert.False(t, Verify("secret-b", payload, header))
}

func TestVerifyRejectsSingleByteMutation(t *testing.T) {
	payload := []byte(`{"status":"verified"}`)
	header := Compute("shared-secret", payload)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] ^= 0x01

	assert.False(t, Verify("shared-secret", tampered, header))
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)

	assert.False(t, Verify("shared-secret", payload, ""))
	assert.False(t, Verify("shared-secret", payload, "sha256=zz"))
	assert.False(t, Verify("shared-secret", payload, "md5=deadbeef"))
}
