package common

import "errors"

// Business logic errors
var (
	// Configuration errors (fatal at registration time, never at runtime)
	ErrInvalidConfiguration = errors.New("invalid versioning configuration")
	ErrTypeNotRegistered    = errors.New("record type not registered for versioning")

	// Version errors
	ErrVersionNotFound   = errors.New("version not found")
	ErrCorruptPayload    = errors.New("corrupt version payload")
	ErrPersistence       = errors.New("persistence failure")
	ErrNumberingConflict = errors.New("version numbering conflict")

	// Document errors
	ErrDocumentNotFound = errors.New("document not found")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
