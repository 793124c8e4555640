package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")

	// ErrInvalidToken indicates a bearer token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrDecryption indicates ciphertext could not be authenticated.
	// Callers must treat it exactly like an unknown token.
	ErrDecryption = errors.New("auth: decryption failed")
)
