package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature возвращается при несовпадении подписи запроса.
var ErrBadSignature = errors.New("подпись запроса недействительна")

// ErrStaleTimestamp возвращается, если timestamp запроса слишком старый.
var ErrStaleTimestamp = errors.New("timestamp запроса устарел")

const signatureVersion = "v0"

// maxTimestampSkew ограничивает возраст запроса для защиты от replay.
const maxTimestampSkew = 5 * time.Minute

// Verifier проверяет подпись входящих запросов мессенджера по общему секрету.
type Verifier struct {
	secret string
	now    func() time.Time
}

// NewVerifier создаёт проверку подписи.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify сверяет заголовки подписи с HMAC-SHA256 от сырого тела запроса.
// База подписи: "v0:<timestamp>:<body>".
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > maxTimestampSkew || age < -maxTimestampSkew {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
