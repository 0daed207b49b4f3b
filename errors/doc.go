// Package errors provides structured error types for witbind.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/WIT type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("render", "lang").
//		GoType("float64").
//		WitType("enum").
//		Detail("enum cases are names or indices").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidDiscriminant(errors.PhaseDecode, path, 7, 2)
//	err := errors.InvalidHandle("file", 3, "already dropped")
//
// Match categories with the exported targets; empty fields on a target act as
// wildcards, so ErrEncoding matches every encode-phase failure:
//
//	if errors.Is(err, errors.ErrInvalidHandle) { ... }
package errors
