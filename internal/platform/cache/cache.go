// Package cache provides a small lookaside cache for report storage
// paths. A miss or a cache outage is never an error for callers; the
// slower database path always remains authoritative.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a cached path is trusted before the
// database is consulted again.
const DefaultTTL = 15 * time.Minute

// PathCache maps a report identity to the blob path it was last
// rendered to.
type PathCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, path string)
}

// Key builds the cache key for one report variant. Preferences are part
// of the identity: the same session rendered with a different tone or
// reading level is a different report.
func Key(sessionID uuid.UUID, tone, languageLevel string) string {
	return fmt.Sprintf("report-path:%s:%s:%s", sessionID, tone, languageLevel)
}

// Noop satisfies PathCache while caching nothing. Used when no Redis
// endpoint is configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) (string, bool) { return "", false }
func (Noop) Set(ctx context.Context, key, path string)          {}
