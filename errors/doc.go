// Package errors provides standardized error handling patterns for the wxt
// storage layer.
//
// # Overview
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable by the caller), Invalid (bad input or definitions,
// non-retryable), and Fatal (unrecoverable, stop processing). The storage
// layer itself never retries; classification exists so callers can make that
// decision without string matching.
//
// # Error Classification
//
//   - Transient: store unavailability, host timeouts, context cancellation
//   - Invalid: malformed namespaced keys, unknown areas, bad item definitions
//   - Fatal: missing migration functions, corrupted data, quota exhaustion
//
// The classification integrates with Go's standard error handling, supporting
// errors.Is(), errors.As(), and wrapping chains.
//
// # Error Wrapping Pattern
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Storage", "Get", "read from driver")
//	errors.WrapInvalid(err, "Storage", "ResolveKey", "parse key")
//	errors.WrapFatal(err, "Item", "Migrate", "apply migration")
//
// # Standard Error Variables
//
// Pre-defined variables cover the common conditions of this layer:
//
//   - Key addressing: ErrInvalidKey, ErrUnknownArea
//   - Item definitions: ErrDefinition, ErrMissingMigration
//   - Host store: ErrKeyNotFound, ErrStoreUnavailable, ErrQuotaExceeded,
//     ErrPermissionDenied, ErrStoreClosed
//   - Data: ErrInvalidData, ErrDataCorrupted
//
// Use these instead of ad-hoc error strings so callers can branch with
// errors.Is across driver boundaries.
package errors
