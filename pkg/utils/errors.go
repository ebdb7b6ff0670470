// Package utils provides the small helpers config and the wire layer share:
// cached environment lookups and the one error-wrapping convention used when
// a config load fails partway through.
package utils

import "fmt"

// Wrap adds context to an error message, e.g. Wrap(err, "load config"). It
// returns nil if err is nil so callers can pass it straight through without
// an extra nil check.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
