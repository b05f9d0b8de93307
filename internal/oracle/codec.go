package oracle

import (
	"crypto/rsa"
	"encoding/binary"
	"fmt"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
)

// wordSize is the width of one cleartext integer on the wire.
const wordSize = 8

// EncodeCleartexts packs values as consecutive big-endian uint64 words.
func EncodeCleartexts(values []uint64) []byte {
	out := make([]byte, len(values)*wordSize)
	for i, v := range values {
		binary.BigEndian.PutUint64(out[i*wordSize:], v)
	}
	return out
}

// DecodeCleartexts unpacks exactly n words from data.
func DecodeCleartexts(data []byte, n int) ([]uint64, error) {
	if n <= 0 || len(data) != n*wordSize {
		return nil, fmt.Errorf("%w: expected %d cleartext words, got %d bytes", model.ErrSerialization, n, len(data))
	}
	values := make([]uint64, n)
	for i := range values {
		values[i] = binary.BigEndian.Uint64(data[i*wordSize:])
	}
	return values, nil
}

// EncryptValue produces a ciphertext handle for v that only the holder of
// the oracle private key can open.
func EncryptValue(pub *rsa.PublicKey, v uint64) (model.EncryptedValue, error) {
	var buf [wordSize]byte
	binary.BigEndian.PutUint64(buf[:], v)
	ct, err := crypto.Encrypt(buf[:], pub)
	if err != nil {
		return nil, err
	}
	return model.EncryptedValue(ct), nil
}

func decryptValue(priv *rsa.PrivateKey, handle model.EncryptedValue) (uint64, error) {
	pt, err := crypto.Decrypt(handle, priv)
	if err != nil {
		return 0, err
	}
	if len(pt) != wordSize {
		return 0, fmt.Errorf("%w: handle holds %d bytes, want %d", model.ErrSerialization, len(pt), wordSize)
	}
	return binary.BigEndian.Uint64(pt), nil
}
