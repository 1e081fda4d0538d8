package session

import (
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/fetch"
)

// Error kinds returned by Run. Test with errors.Is.
var (
	ErrValidation = errors.New("invalid run options")
	ErrFetch      = fetch.ErrFetch
	ErrExtraction = errors.New("team name not found")
	ErrNoData     = errors.New("no matches found")
	ErrCancelled  = errors.New("run cancelled")
)

// Kind names the error class of err for logs and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrNoData):
		return "no_data"
	default:
		return "internal"
	}
}
