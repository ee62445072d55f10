package identity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/samaecole/backend/core"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// tokenGenerator makes single purpose, time limited tokens bound to the state of an Identity:
// changing the password (or confirming the email) invalidates every token issued before.
type tokenGenerator struct {
	salt    []byte
	secret  []byte
	timeout time.Duration
}

func newTokenGenerator(purpose, secret string, timeout time.Duration) tokenGenerator {
	return tokenGenerator{
		salt:    []byte("samaecole.core.identity." + purpose),
		secret:  []byte(secret),
		timeout: timeout,
	}
}

// EncodeUID base64 encodes given Identity ID
func EncodeUID(ident Identity) string {
	return base64.RawURLEncoding.EncodeToString([]byte(ident.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

func (tg tokenGenerator) makeToken(ident Identity) (string, error) {
	return tg.makeTokenWithTimestamp(ident, numDaysSince2001(core.NowFunc()))
}

func (tg tokenGenerator) verifyToken(ident Identity, token string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := tg.makeTokenWithTimestamp(ident, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(core.NowFunc()) - ts) > int(tg.timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func (tg tokenGenerator) makeTokenWithTimestamp(ident Identity, ts int) (string, error) {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := tg.sign(hashValue(ident, ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func (tg tokenGenerator) sign(val []byte) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, tg.salt...), tg.secret...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(ident Identity, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(ident.ID)
	val.Write(ident.PasswordHash)
	if ident.LastLogin.Valid {
		val.WriteString(ident.LastLogin.Time.UTC().Format(time.RFC3339))
	}
	if ident.EmailConfirmedAt.Valid {
		val.WriteString(ident.EmailConfirmedAt.Time.UTC().Format(time.RFC3339))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
