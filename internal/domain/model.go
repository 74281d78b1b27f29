package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Model is a trained NLU artifact as persisted by the model repository.
type Model struct {
	ModelID       string    `json:"modelId"`
	Language      string    `json:"language"`
	Seed          int64     `json:"seed"`
	EngineVersion string    `json:"engineVersion"`
	PasswordHash  string    `json:"-"`
	Data          []byte    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Size returns the serialized size of the model in bytes.
func (m *Model) Size() int {
	return len(m.Data)
}

// HashPassword returns the stored form of a model password.
// An empty password hashes to the empty string so unprotected models share one namespace.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
