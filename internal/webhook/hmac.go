package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is returned for every signature failure. The cause is
// deliberately not exposed to callers of the HTTP surface.
var errVerification = errors.New("webhook verification failed")

// verifySignature checks an HMAC-SHA256 signature over the raw request body
// using constant-time comparison. Both the plain-hex form the tracker sends
// and the "sha256=<hex>" form are accepted.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	actual, err := decodeSignature(signature)
	if err != nil {
		return errVerification
	}
	if subtle.ConstantTimeCompare(expected, actual) != 1 {
		return errVerification
	}
	return nil
}

func decodeSignature(signature string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
}

// signBody computes the hex HMAC-SHA256 signature for a body. Test helper.
func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
