// Package cache holds short-lived read results so repeated dashboard and
// report lookups inside one window do not hit the Graph API again.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/adsrocket/adsrocket/internal/telemetry"
)

// TTL is fixed; entries older than this are never served.
const TTL = 300 * time.Second

// Layer is a key to payload store with a fixed TTL. InvalidateAll must be
// called after any write to the ad account.
type Layer interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	InvalidateAll(ctx context.Context)
}

const keySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// Key builds a deterministic cache key. Parts are escaped so that distinct
// inputs cannot collide.
func Key(resource string, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, keyEscaper.Replace(resource))
	for _, part := range parts {
		escaped = append(escaped, keyEscaper.Replace(part))
	}
	return strings.Join(escaped, keySeparator)
}

// Resource returns the resource a key was built for.
func Resource(key string) string {
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '\\':
			i++
		case keySeparator[0]:
			return key[:i]
		}
	}
	return key
}

type instrumented struct {
	next    Layer
	metrics *telemetry.Metrics
}

// Instrument records hit, miss and invalidation counts for layer.
func Instrument(layer Layer, metrics *telemetry.Metrics) Layer {
	if metrics == nil {
		return layer
	}
	return &instrumented{next: layer, metrics: metrics}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool) {
	data, ok := i.next.Get(ctx, key)
	i.metrics.RecordCacheLookup(Resource(key), ok)
	return data, ok
}

func (i *instrumented) Set(ctx context.Context, key string, data []byte) {
	i.next.Set(ctx, key, data)
}

func (i *instrumented) InvalidateAll(ctx context.Context) {
	i.next.InvalidateAll(ctx)
	i.metrics.RecordCacheInvalidation()
}
