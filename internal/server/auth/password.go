package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// MinHashCost is the lowest bcrypt work factor the server will accept.
const MinHashCost = 10

// DummyHash is a valid bcrypt hash of a random throwaway value, computed once
// at startup. Login verifies against it when no account matches the email, so
// the request costs the same whether or not the account exists.
var DummyHash = makeDummyHash()

func makeDummyHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(b)), MinHashCost)
	if err != nil {
		// bcrypt only fails on invalid cost or oversized input, neither applies
		panic(err)
	}
	return string(hash)
}

// HashPassword produces a salted bcrypt hash of the plaintext. Costs below
// MinHashCost are raised to it.
func HashPassword(plaintext string, cost int) (string, error) {
	if cost < MinHashCost {
		cost = MinHashCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
// A mismatch is not an error; the comparison inside bcrypt is constant-time.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
