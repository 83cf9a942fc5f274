package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/store"
)

// RegisterBuiltins installs the handlers that need more than a plain relay.
// "updated"-style events re-fetch the canonical resource before broadcasting
// so recipients see consistent post-write state instead of a possibly
// partial client payload. Everything else (created/deleted/reordered, votes,
// typing, cursor moves) rides the fallback relay.
func RegisterBuiltins(d *Dispatcher, resources store.ResourceStore, logger *zerolog.Logger) {
	d.Register("trip:updated", refetchHandler("trip", logger, func(ctx context.Context, id string) (any, error) {
		return resources.GetTrip(ctx, id)
	}))
	d.Register("activity:updated", refetchHandler("activity", logger, func(ctx context.Context, id string) (any, error) {
		return resources.GetActivity(ctx, id)
	}))
	d.Register("expense:updated", refetchHandler("expense", logger, func(ctx context.Context, id string) (any, error) {
		return resources.GetExpense(ctx, id)
	}))
}

// refetchHandler builds a handler for "<field>:updated" messages whose
// payload carries the resource under the named field. A failed re-fetch is
// logged and the broadcast suppressed; other clients will still see a later
// deletion or creation event if one matters.
func refetchHandler(field string, logger *zerolog.Logger, fetch func(ctx context.Context, id string) (any, error)) HandlerFunc {
	msgType := field + ":updated"

	return func(ctx context.Context, raw json.RawMessage, dc *DispatchContext) error {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("decode %s: %w", msgType, err)
		}
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(fields[field], &ref); err != nil || ref.ID == "" {
			return fmt.Errorf("%s payload has no %s id", msgType, field)
		}

		resource, err := fetch(ctx, ref.ID)
		if err != nil {
			logger.Warn().Err(err).Str("type", msgType).Str("id", ref.ID).Msg("re-fetch failed, broadcast suppressed")
			return nil
		}

		dc.Rooms.Broadcast(dc.TripID, map[string]any{
			"type":      msgType,
			field:       resource,
			"userId":    dc.UserID,
			"timestamp": time.Now().UnixMilli(),
		}, dc.UserID)
		return nil
	}
}
