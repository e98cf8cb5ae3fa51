// Package runid generates the per-process run identifier. cmd/adalightd
// attaches it to its own logger only; loggers created by other packages do
// not carry it. Grounded in the teacher's
// internal/util/parsing.go RandomString, which also builds identifiers from
// github.com/google/uuid; here the raw UUID is kept instead of trimmed to a
// fixed length, since this identifier is for log correlation, not display.
package runid

import "github.com/google/uuid"

// New returns a fresh run identifier.
func New() string {
	return uuid.NewString()
}
