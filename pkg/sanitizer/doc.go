// Package sanitizer normalizes user supplied strings before validation and
// storage.
//
// All functions are idempotent and never fail: invalid input folds to an
// empty string.
//
// Normalization includes:
//   - Locations: lowercase letters joined by underscores, "Tel Aviv" becomes "tel_aviv"
//   - Service types: lowercase letters and digits joined by underscores
//   - Free text and display names: whitespace runs collapsed, ends trimmed
package sanitizer
