package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrPermissionDenied indicates the record store denied access to a category.
	// Not retried automatically; the user must re-grant access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrSourceUnavailable indicates a transient record store failure, safe to retry
	ErrSourceUnavailable = errors.New("record source unavailable")

	// ErrCancelled indicates the export was cancelled by the user
	ErrCancelled = errors.New("export cancelled")

	// ErrSerialization indicates the snapshot could not be serialized
	ErrSerialization = errors.New("serialization failed")

	// ErrEncryption indicates sealing the output failed
	ErrEncryption = errors.New("encryption failed")

	// ErrAuthenticationFailed indicates a wrong password or corrupted ciphertext
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrDestinationUnavailable indicates the destination reference is stale or revoked
	ErrDestinationUnavailable = errors.New("destination unavailable")

	// ErrValidationFailed indicates the post-run output sanity check failed
	ErrValidationFailed = errors.New("output validation failed")

	// ErrExportInProgress indicates an export is already running
	ErrExportInProgress = errors.New("export already in progress")
)
