package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/backchannel/internal/seed"
	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
)

// Init seeds the default channels exactly once per database.
//
// The seeded marker is claimed inside the same transaction as the channel
// inserts, so a crash mid-seed leaves the marker unclaimed and the next
// startup retries cleanly. Reopening an already-seeded database is a
// no-op. Publishes a snapshot when seeding actually ran.
func (e *Engine) Init(ctx context.Context, owner table.Identity, channels []seed.Channel) error {
	seeded := false

	err := e.store.Update(ctx, func(st *store.Tx) error {
		claimed, err := st.MarkSeeded(ctx)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		seeded = true

		now := e.clock.Now()
		for _, ch := range channels {
			if _, err := st.InsertChannel(ctx, table.Channel{
				Name:      slugifyChannelName(NormalizeText(ch.Name)),
				Topic:     NormalizeText(ch.Topic),
				CreatedBy: owner,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !seeded {
		slog.Debug("database already seeded")
		return nil
	}

	slog.Info("seeded default channels", "count", len(channels))
	return e.publish(ctx)
}
