package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrSignatureInvalid is returned by VerifyWebhook when the signature
// header does not verify or the timestamp header exceeds the tolerance.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// VerifyWebhook checks a provider webhook's HMAC-SHA256 signature over
// timestamp+"."+body against secret, and rejects requests whose timestamp
// is older than tolerance (default 300s per §4.1).
func VerifyWebhook(secret, signatureHeader, timestampHeader string, body []byte, tolerance time.Duration) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp header", ErrSignatureInvalid)
	}
	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestampHeader))
	mac.Write([]byte("."))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(signatureHeader)) {
		return fmt.Errorf("%w: mismatch", ErrSignatureInvalid)
	}
	return nil
}
