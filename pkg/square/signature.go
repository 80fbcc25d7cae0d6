package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the HMAC Square attaches to webhook deliveries.
const SignatureHeader = "x-square-hmacsha256-signature"

// ValidSignature checks a webhook signature: base64(HMAC-SHA256(key,
// notificationURL + body)).
func ValidSignature(body []byte, notificationURL, signatureKey, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || signatureKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// Sign computes the signature Square would send; used by tests and local tooling.
func Sign(body []byte, notificationURL, signatureKey string) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
