package paymentwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>". Several v1
// entries may be present while a secret is being rotated.
const SignatureHeader = "Payment-Signature"

const defaultTolerance = 5 * time.Minute

// Sign returns the header value a provider would send for payload at ts.
func Sign(secret string, ts time.Time, payload []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + computeSignature(secret, t, payload)
}

// VerifySignature checks header against HMAC-SHA256(secret, "<t>.<payload>")
// and rejects timestamps further than tolerance from now.
func VerifySignature(header string, payload []byte, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	unix, convErr := strconv.ParseInt(timestamp, 10, 64)
	if convErr != nil {
		return pkgerrors.New(pkgerrors.CodeSignature, "signature timestamp malformed")
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > tolerance || age < -tolerance {
		return pkgerrors.New(pkgerrors.CodeSignature, "signature timestamp outside tolerance")
	}

	expected := []byte(computeSignature(secret, timestamp, payload))
	for _, candidate := range signatures {
		if hmac.Equal(expected, []byte(candidate)) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeSignature, "signature mismatch")
}

func parseSignatureHeader(header string) (string, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeSignature, "signature header missing")
	}
	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, strings.ToLower(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, pkgerrors.New(pkgerrors.CodeSignature, "signature header malformed")
	}
	return timestamp, signatures, nil
}

func computeSignature(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
