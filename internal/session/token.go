package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// TokenBytes is the amount of entropy in a session token.
const TokenBytes = 32

// NewToken returns nbytes of crypto/rand encoded as unpadded base64url.
func NewToken(nbytes int) (string, error) {
	if nbytes < 16 {
		return "", errors.New("token size too small")
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
