// Package source adapts storage backends to the engine's canonical sighting
// shape. It performs no filtering: FetchAll is a pure shape-normalizing pass
// over whatever backend is configured, and an empty backend is a valid empty
// result, not an error.
package source

import (
	"context"

	"github.com/sightline-ai/sightline/engine/domain"
)

// Source supplies raw sighting rows from a storage backend. Implementations
// wrap unreachable-backend failures with domain.ErrSourceUnavailable.
type Source interface {
	FetchAll(ctx context.Context) ([]domain.SightingRecord, error)
}
