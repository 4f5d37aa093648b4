package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Retell-Signature"

// SignatureTolerance bounds how old a signed webhook may be.
const SignatureTolerance = 5 * time.Minute

var ErrBadSignature = errors.New("telephony: invalid webhook signature")

// Sign produces "v=<unix ms>,d=<hex hmac-sha256(body+timestamp)>".
func Sign(body []byte, apiKey string, at time.Time) string {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	return "v=" + ts + ",d=" + digest(body, ts, apiKey)
}

// VerifySignature checks a webhook body against its signature header.
func VerifySignature(body []byte, apiKey, header string, now time.Time) error {
	if apiKey == "" || header == "" {
		return ErrBadSignature
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "v":
			ts = v
		case "d":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrBadSignature
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := now.Sub(time.UnixMilli(ms))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return ErrBadSignature
	}

	if !hmac.Equal([]byte(sig), []byte(digest(body, ts, apiKey))) {
		return ErrBadSignature
	}
	return nil
}

func digest(body []byte, ts, apiKey string) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(body)
	mac.Write([]byte(ts))
	return hex.EncodeToString(mac.Sum(nil))
}
