// Package validation provides common validation utilities for configuration
// parameters across the taskpool library.
//
// Constructors use these helpers so that every rejected value surfaces as a
// *errors.ValidationError with a consistent message and hint.
package validation
