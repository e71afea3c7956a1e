package id

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)

}

// Reference builds a ledger reference such as "trf-<uuid>".
func Reference(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// NewToken returns a random 32 byte token, hex encoded.
func NewToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken is the form in which tokens are stored and looked up.
func HashToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
