package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "X-Webhook-Signature"

// SignatureVerifier checks HMAC-SHA256 signatures computed over the
// notification URL followed by the raw body, base64 encoded. Several keys
// may be active at once while a key is being rotated.
type SignatureVerifier struct {
	notificationURL string
	keys            []string
}

func NewSignatureVerifier(notificationURL string, keys []string) *SignatureVerifier {
	v := &SignatureVerifier{notificationURL: strings.TrimSpace(notificationURL)}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			v.keys = append(v.keys, k)
		}
	}
	return v
}

// Configured reports whether a notification URL and at least one key are set.
func (v *SignatureVerifier) Configured() bool {
	return v != nil && v.notificationURL != "" && len(v.keys) > 0
}

// Verify reports whether signatureHeader matches payload under any key.
func (v *SignatureVerifier) Verify(payload []byte, signatureHeader string) bool {
	if !v.Configured() {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil || len(sig) == 0 {
		return false
	}

	matched := false
	for _, key := range v.keys {
		// Every key is checked so timing does not reveal which one matched.
		if hmac.Equal(Sign(v.notificationURL, payload, key), sig) {
			matched = true
		}
	}
	return matched
}

// Sign returns the raw HMAC for notificationURL+payload under key.
func Sign(notificationURL string, payload []byte, key string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignBase64 returns the header value the provider would send.
func SignBase64(notificationURL string, payload []byte, key string) string {
	return base64.StdEncoding.EncodeToString(Sign(notificationURL, payload, key))
}
