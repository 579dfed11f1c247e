package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var errBadCredentials = errors.New("credentials do not match")

// hashSecret hashes a directory password. Costs outside bcrypt's range fall
// back to bcrypt.DefaultCost.
func hashSecret(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// verifySecret reports errBadCredentials for a mismatch or a principal
// without a stored hash.
func verifySecret(hash, password string) error {
	if hash == "" {
		return errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errBadCredentials
		}
		return err
	}
	return nil
}
