package oracle

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
	"github.com/idudko/fhe-telemetry/pkg/hash"
)

// Signer attests that cleartexts are the decryption result for a request.
type Signer interface {
	Sign(id model.RequestID, cleartexts []byte) ([]byte, error)
}

// Verifier checks a proof produced by the matching Signer. It must fail
// closed: any doubt is an error.
type Verifier interface {
	Verify(id model.RequestID, cleartexts, proof []byte) error
}

// ProofMessage binds cleartexts to the request id so a proof cannot be
// replayed against another request.
func ProofMessage(id model.RequestID, cleartexts []byte) []byte {
	msg := make([]byte, 0, len(id)+1+len(cleartexts))
	msg = append(msg, id...)
	msg = append(msg, ':')
	return append(msg, cleartexts...)
}

// RSASigner signs with RSA-PSS.
type RSASigner struct {
	key *rsa.PrivateKey
}

func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

func (s *RSASigner) Sign(id model.RequestID, cleartexts []byte) ([]byte, error) {
	return crypto.Sign(ProofMessage(id, cleartexts), s.key)
}

// RSAVerifier checks RSA-PSS proofs against the oracle public key.
type RSAVerifier struct {
	pub *rsa.PublicKey
}

func NewRSAVerifier(pub *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{pub: pub}
}

func (v *RSAVerifier) Verify(id model.RequestID, cleartexts, proof []byte) error {
	if v.pub == nil || len(proof) == 0 {
		return model.ErrVerificationFailed
	}
	if err := crypto.Verify(ProofMessage(id, cleartexts), proof, v.pub); err != nil {
		return fmt.Errorf("%w: %v", model.ErrVerificationFailed, err)
	}
	return nil
}

// HMACProof is a shared-secret Signer and Verifier. Proofs are the hex
// HMAC-SHA256 of the proof message.
type HMACProof struct {
	key string
}

// NewHMACProof refuses an empty key: an unkeyed HMAC check would accept
// anything.
func NewHMACProof(key string) (*HMACProof, error) {
	if key == "" {
		return nil, errors.New("hmac proof key is empty")
	}
	return &HMACProof{key: key}, nil
}

func (p *HMACProof) Sign(id model.RequestID, cleartexts []byte) ([]byte, error) {
	return []byte(hash.ComputeHash(ProofMessage(id, cleartexts), p.key)), nil
}

func (p *HMACProof) Verify(id model.RequestID, cleartexts, proof []byte) error {
	if len(proof) == 0 || !hash.ValidateHash(ProofMessage(id, cleartexts), p.key, string(proof)) {
		return model.ErrVerificationFailed
	}
	return nil
}
