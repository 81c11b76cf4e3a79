package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

// Error taxonomy. Only ErrInvalidInput and ErrJobNotFound reach HTTP callers
// synchronously; everything else is recorded on the job or logged.
var (
	ErrInvalidInput        = eris.New("invalid input")
	ErrResearchUnavailable = eris.New("research unavailable")
	ErrGenerationFailure   = eris.New("generation failed")
	ErrPersistenceDegraded = eris.New("persistence degraded")

	// ErrJobNotFound is the store sentinel so callers can check either.
	ErrJobNotFound = store.ErrJobNotFound
)
