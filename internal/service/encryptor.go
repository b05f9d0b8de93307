package service

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
)

// Encryptor turns a user-supplied value into the opaque payload stored in a
// record.
type Encryptor interface {
	Encrypt(value string) (string, error)
}

// OracleEncryptor encrypts values under the oracle public key. Only the
// oracle can recover them.
type OracleEncryptor struct {
	pub *rsa.PublicKey
}

func NewOracleEncryptor(pub *rsa.PublicKey) *OracleEncryptor {
	return &OracleEncryptor{pub: pub}
}

// MaxValueLen is the largest plaintext RSA-OAEP/SHA-256 accepts under the
// oracle key: 190 bytes for 2048 bits, 62 for 1024.
func (e *OracleEncryptor) MaxValueLen() int {
	return e.pub.Size() - 2*sha256.Size - 2
}

func (e *OracleEncryptor) Encrypt(value string) (string, error) {
	if limit := e.MaxValueLen(); len(value) > limit {
		return "", fmt.Errorf("%w: value is longer than %d bytes", model.ErrInvalidInput, limit)
	}
	ciphertext, err := crypto.Encrypt([]byte(value), e.pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
