package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HeaderName is the HTTP header carrying the hex HMAC of a request or
// response body.
const HeaderName = "HashSHA256"

// Sum returns the raw HMAC-SHA256 of data under key.
func Sum(data []byte, key string) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(data)
	return h.Sum(nil)
}

// ComputeHash returns the hex HMAC-SHA256 of data, or "" when key is empty
// (signing disabled).
//
// Example:
//
//	body := []byte(`{"metricType":"CPU Usage","value":"42"}`)
//	req.Header.Set(hash.HeaderName, hash.ComputeHash(body, "my-secret-key"))
func ComputeHash(data []byte, key string) string {
	if key == "" {
		return ""
	}
	return hex.EncodeToString(Sum(data, key))
}

// ValidateHash reports whether receivedHash is the hex HMAC of data.
//
// An empty key disables validation and always succeeds; callers that must
// fail closed (proof verification) check the key themselves. An empty
// receivedHash never validates. Comparison is constant time.
func ValidateHash(data []byte, key string, receivedHash string) bool {
	if key == "" {
		return true
	}
	if receivedHash == "" {
		return false
	}
	return hmac.Equal([]byte(ComputeHash(data, key)), []byte(receivedHash))
}
