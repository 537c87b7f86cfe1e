package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature: "t=<unix>,s=<hex hmac>".
const SignatureHeader = "YCloud-Signature"

// DefaultSignatureSkew is how far the signed timestamp may drift from now.
const DefaultSignatureSkew = 5 * time.Minute

var (
	ErrSignatureMissing   = errors.New("webhook signature missing")
	ErrSignatureMalformed = errors.New("webhook signature malformed")
	ErrSignatureExpired   = errors.New("webhook signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
)

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against body. maxSkew <= 0 disables the
// timestamp tolerance check.
func VerifySignature(secret, header string, body []byte, now time.Time, maxSkew time.Duration) error {
	if strings.TrimSpace(header) == "" {
		return ErrSignatureMissing
	}

	var (
		ts  int64
		sig string
		err error
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrSignatureMalformed
			}
		case "s":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return ErrSignatureMalformed
	}

	if maxSkew > 0 {
		drift := now.Sub(time.Unix(ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > maxSkew {
			return ErrSignatureExpired
		}
	}

	given, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureMalformed
	}
	expected, _ := hex.DecodeString(Sign(secret, ts, body))
	if !hmac.Equal(given, expected) {
		return ErrSignatureMismatch
	}
	return nil
}
