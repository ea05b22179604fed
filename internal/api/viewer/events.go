package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-choropleth/internal/humastar"
	"github.com/joeblew999/plat-choropleth/internal/service"
)

// Events streams a session's queued map commands, dataset refreshes and
// resource change events until the client disconnects or the session is
// evicted.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	sess, ok := h.store.Get(input.Session)
	if !ok {
		return h.Stream(func(sse humastar.SSE) { sse.Error(msgSessionExpired) }), nil
	}

	return h.Stream(func(sse humastar.SSE) {
		var ch chan service.Event
		if h.bus != nil {
			ch = h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)
		}

		send(sse, sess.Pending())
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.Closed():
				sse.Error(msgSessionExpired)
				return
			case <-sess.Notify():
				send(sse, sess.Pending())
			case ev := <-ch:
				if ev.Resource == "districts" && ev.Action == "reloaded" {
					u, err := sess.RefreshDataset(h.dataURL())
					if err != nil {
						h.log.Error().Err(err).Str("session", sess.ID).Msg("dataset refresh failed")
					}
					send(sse, u)
				}
				sse.Dispatch("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}
