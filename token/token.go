package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-alone"
	"github.com/pkg/errors"
)

// ErrTokenExpired is returned when the given token's ttl in the past
var ErrTokenExpired = errors.New("token: token has expired")

// ErrInvalidToken is returned when the token has an invalid signature or is otherwise invalid
var ErrInvalidToken = errors.New("token: invalid token")

// Generator signs and verifies short lived values such as the OAuth state parameter.
// A token is "<id>.<nonce>.<expiry>" signed with the server key.
type Generator struct {
	s      *goalone.Sword
	maxAge time.Duration
	now    func() time.Time
}

// NewGenerator takes a key and a max age for the token then returns a new token generator
func NewGenerator(k string, m time.Duration) *Generator {
	return &Generator{s: goalone.New([]byte(k)), maxAge: m, now: time.Now}
}

// NewToken returns a signed token carrying id. Every call returns a different token.
func (tg *Generator) NewToken(id string) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "token: failed to read nonce")
	}

	exp := tg.now().Add(tg.maxAge).UTC().Unix()
	tk := fmt.Sprintf("%v.%v.%v", id, hex.EncodeToString(nonce), exp)

	return string(tg.s.Sign([]byte(tk))), nil
}

// VerifyToken returns the id carried by t or an error
func (tg *Generator) VerifyToken(t string) (string, error) {
	tByte, err := tg.s.Unsign([]byte(t))
	if err != nil {
		return "", ErrInvalidToken
	}

	parts := strings.Split(string(tByte), ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrInvalidToken
	}

	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if !tg.now().Before(time.Unix(exp, 0)) {
		return "", ErrTokenExpired
	}

	return parts[0], nil
}
