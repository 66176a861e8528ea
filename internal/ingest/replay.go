package ingest

import (
	"context"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// ReplayCutoffs decides which reports a restarted file source has already
// ingested. The cutoff is the newest stored event of the report's own user
// and source, so a quiet user's reports are not dropped because another
// user or platform reported later.
type ReplayCutoffs struct {
	Resolver Resolver
	Latest   map[store.SourceKey]time.Time
}

// replayed reports whether r is at or before the cutoff of its stream.
// Reports without a timestamp are stamped on arrival and never count as
// replayed. Reports that cannot be classified or resolved are passed on so
// the ingester rejects them the usual way.
func (c ReplayCutoffs) replayed(ctx context.Context, r Report) bool {
	if len(c.Latest) == 0 || c.Resolver == nil || r.Timestamp == "" {
		return false
	}
	ts, err := presence.ParseTimestamp(r.Timestamp)
	if err != nil {
		return false
	}
	cls, err := Classify(r.Platform, r.Status)
	if err != nil {
		return false
	}
	userID, err := c.Resolver.Resolve(ctx, r)
	if err != nil {
		return false
	}
	cutoff, ok := c.Latest[store.SourceKey{UserID: userID, Source: cls.Source}]
	return ok && !ts.After(cutoff)
}
