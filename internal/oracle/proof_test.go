package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/model"
)

func TestHMACProofRequiresKey(t *testing.T) {
	_, err := NewHMACProof("")
	assert.Error(t, err)
}

func TestProofs(t *testing.T) {
	hmacProof, err := NewHMACProof("secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		signer   Signer
		verifier Verifier
	}{
		{name: "hmac", signer: hmacProof, verifier: hmacProof},
		{name: "rsa-pss", signer: NewRSASigner(testKey()), verifier: NewRSAVerifier(&testKey().PublicKey)},
	}

	cleartexts := EncodeCleartexts([]uint64{1, 2, 3})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, err := tt.signer.Sign("req-1", cleartexts)
			require.NoError(t, err)

			assert.NoError(t, tt.verifier.Verify("req-1", cleartexts, proof))
			assert.ErrorIs(t, tt.verifier.Verify("req-2", cleartexts, proof), model.ErrVerificationFailed)
			assert.ErrorIs(t, tt.verifier.Verify("req-1", EncodeCleartexts([]uint64{1, 2, 4}), proof), model.ErrVerificationFailed)
			assert.ErrorIs(t, tt.verifier.Verify("req-1", cleartexts, nil), model.ErrVerificationFailed)
		})
	}
}

func TestCodec(t *testing.T) {
	values := []uint64{0, 1, 1 << 40}
	decoded, err := DecodeCleartexts(EncodeCleartexts(values), 3)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)

	_, err = DecodeCleartexts(EncodeCleartexts(values), 2)
	assert.ErrorIs(t, err, model.ErrSerialization)
	_, err = DecodeCleartexts(nil, 0)
	assert.ErrorIs(t, err, model.ErrSerialization)
}

func TestEncryptValue(t *testing.T) {
	h, err := EncryptValue(&testKey().PublicKey, 91)
	require.NoError(t, err)

	v, err := decryptValue(testKey(), h)
	require.NoError(t, err)
	assert.Equal(t, uint64(91), v)
}
