package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/sha3"

	"github.com/idudko/fhe-telemetry/internal/model"
)

// Wallet is a P-256 key pair that proves control of its address by signing
// session challenges.
type Wallet struct {
	key  *ecdsa.PrivateKey
	addr model.Address
}

func NewWallet() (*Wallet, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	return newWallet(key)
}

// LoadWallet reads a PEM encoded P-256 private key in SEC 1 or PKCS #8 form.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("wallet key is not PEM encoded")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var parsed any
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if key, ok = parsed.(*ecdsa.PrivateKey); !ok {
				err = fmt.Errorf("wallet key is %T, not ECDSA", parsed)
			}
		}
	default:
		err = fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return newWallet(key)
}

func newWallet(key *ecdsa.PrivateKey) (*Wallet, error) {
	addr, err := AddressOf(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Wallet{key: key, addr: addr}, nil
}

func (w *Wallet) Address() model.Address { return w.addr }

// EncodePEM returns the private key as an "EC PRIVATE KEY" block.
func (w *Wallet) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(w.key)
	if err != nil {
		return nil, fmt.Errorf("marshal wallet key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// PublicKey returns the PKIX DER encoding of the public key.
func (w *Wallet) PublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&w.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal wallet public key: %w", err)
	}
	return der, nil
}

// Sign returns an ASN.1 ECDSA signature over SHA-256(challenge).
func (w *Wallet) Sign(challenge string) ([]byte, error) {
	digest := sha256.Sum256([]byte(challenge))
	sig, err := ecdsa.SignASN1(rand.Reader, w.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}
	return sig, nil
}

// AddressOf derives the wallet address of pub: "0x" and the last 20 bytes
// of Keccak-256 over the uncompressed point without its 0x04 prefix.
func AddressOf(pub *ecdsa.PublicKey) (model.Address, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return "", fmt.Errorf("%w: wallet key must be P-256", model.ErrVerificationFailed)
	}
	point, err := pub.ECDH()
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrVerificationFailed, err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(point.Bytes()[1:])
	sum := h.Sum(nil)
	return model.Address("0x" + hex.EncodeToString(sum[len(sum)-20:])), nil
}

// verifyWallet checks that pubDER derives to addr and that sig signs
// challenge.
func verifyWallet(addr model.Address, pubDER, sig []byte, challenge string) error {
	parsed, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return fmt.Errorf("%w: wallet public key: %v", model.ErrVerificationFailed, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: wallet public key is %T, not ECDSA", model.ErrVerificationFailed, parsed)
	}
	derived, err := AddressOf(pub)
	if err != nil {
		return err
	}
	if !derived.Equal(addr) {
		return fmt.Errorf("%w: key does not control %s", model.ErrVerificationFailed, addr)
	}
	digest := sha256.Sum256([]byte(challenge))
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return fmt.Errorf("%w: bad challenge signature", model.ErrVerificationFailed)
	}
	return nil
}
