package util

import "errors"

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// File and directory errors
	ErrExpectedFile = errors.New("expected file, got directory")

	// Handle generator errors
	ErrHandleNotIssued = errors.New("handle was never issued")
	ErrHandleFreed     = errors.New("handle already forgotten")
)
