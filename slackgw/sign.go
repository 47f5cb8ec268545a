package slackgw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// signatureWindow is how far a request timestamp may drift before the request
// is rejected as a possible replay.
const signatureWindow = 5 * time.Minute

// Signature computes the v0 request signature for a body and timestamp.
func Signature(signingSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound request's v0 signature and timestamp
// freshness against the signing secret.
func VerifySignature(signingSecret, timestamp, signature string, body []byte) error {
	if signingSecret == "" {
		return fmt.Errorf("signing secret not configured")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", timestamp)
	}
	if drift := time.Since(time.Unix(ts, 0)); drift > signatureWindow || drift < -signatureWindow {
		return fmt.Errorf("timestamp outside allowed window")
	}
	expected := Signature(signingSecret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
