package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const (
	// PEM block types
	pemBlockTypeRSA          = "RSA PRIVATE KEY"
	pemBlockTypePrivateKey   = "PRIVATE KEY"
	pemBlockTypePublicKey    = "PUBLIC KEY"
	pemBlockTypeRSAPublicKey = "RSA PUBLIC KEY"

	// DefaultKeyBits is the modulus size used by GenerateKey callers.
	DefaultKeyBits = 2048
)

// LoadPublicKey loads an RSA public key from a PEM-encoded file.
//
// Example:
//
//	pubKey, err := crypto.LoadPublicKey("oracle.pub.pem")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// ParsePublicKeyPEM parses a "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY" (PKCS#1)
// PEM block.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from public key")
	}

	var (
		pubKey any
		err    error
	)
	switch block.Type {
	case pemBlockTypePublicKey:
		pubKey, err = x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
	case pemBlockTypeRSAPublicKey:
		pubKey, err = x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 public key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPubKey, nil
}

// LoadPrivateKey loads an RSA private key from a PEM-encoded file.
//
// Example:
//
//	privKey, err := crypto.LoadPrivateKey("oracle.pem")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM parses a "PRIVATE KEY" (PKCS#8) or "RSA PRIVATE KEY"
// (PKCS#1) PEM block.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from private key")
	}

	var (
		privKey any
		err     error
	)
	switch block.Type {
	case pemBlockTypePrivateKey:
		privKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
	case pemBlockTypeRSA:
		privKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}

	rsaPrivKey, ok := privKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaPrivKey, nil
}

// GenerateKey creates a fresh RSA key of the given size.
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// EncodePublicKeyPEM renders pub as a PKIX "PUBLIC KEY" block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockTypePublicKey, Bytes: der}), nil
}

// EncodePrivateKeyPEM renders priv as a PKCS#8 "PRIVATE KEY" block.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockTypePrivateKey, Bytes: der}), nil
}

// Encrypt encrypts data using RSA-OAEP with SHA-256.
//
// For 2048-bit keys the plaintext must stay under 190 bytes. The oracle only
// ever encrypts 8-byte integers.
func Encrypt(plaintext []byte, pubKey *rsa.PublicKey) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pubKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data: %w", err)
	}
	return ciphertext, nil
}

// Decrypt decrypts data that was encrypted using RSA-OAEP with SHA-256.
func Decrypt(ciphertext []byte, privKey *rsa.PrivateKey) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privKey, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	return plaintext, nil
}

// Sign produces an RSA-PSS signature over the SHA-256 digest of msg.
func Sign(msg []byte, privKey *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand.Reader, privKey, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}
	return sig, nil
}

// Verify checks an RSA-PSS signature produced by Sign.
func Verify(msg, sig []byte, pubKey *rsa.PublicKey) error {
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPSS(pubKey, crypto.SHA256, digest[:], sig, nil); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}
