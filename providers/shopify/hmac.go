package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

const SignatureParam = "hmac"

// Canonicalize renders every parameter except the signature as key=value
// pairs sorted by key and joined with "&".
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == SignatureParam {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return strings.Trim(b.String(), "&")
}

// Sign returns the hex HMAC-SHA256 of message keyed by secret.
func Sign(message string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify fails closed when the signature parameter is absent. The digest
// comparison is constant time over the hex strings.
func Verify(params map[string]string, secret string) bool {
	supplied, ok := params[SignatureParam]
	if !ok {
		return false
	}
	expected := Sign(Canonicalize(params), secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
