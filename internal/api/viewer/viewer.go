// Package viewer contains the Datastar SSE handlers that carry map events
// from the page shim to a session and stream the resulting map commands
// and sidebar signals back.
package viewer

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/humastar"
	"github.com/joeblew999/plat-choropleth/internal/service"
	sessions "github.com/joeblew999/plat-choropleth/internal/viewer"
)

// Messages shown in the sidebar error signal.
const (
	msgSessionExpired = "Your session expired. Reload the page."
	msgNotReady       = "The map is still loading."
	msgButtonFailed   = "That district could not be shown."
)

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler
	store   *sessions.Store
	bus     *service.EventBus
	dataURL func() string
	log     zerolog.Logger
}

// NewHandler creates the viewer handler. dataURL reports the current
// dataset URL after a reload; bus may be nil.
func NewHandler(store *sessions.Store, bus *service.EventBus, dataURL func() string, log zerolog.Logger) *Handler {
	return &Handler{store: store, bus: bus, dataURL: dataURL, log: log}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/style-loaded", h.StyleLoaded, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/click", h.Click, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/pointer", h.Pointer, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/fly/{token}", h.Fly, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/move-end", h.MoveEnd, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags("viewer"))
}

type FlyInput struct {
	Token   string `path:"token" doc:"District id or reset" example:"306"`
	RawBody []byte
}

type EventsInput struct {
	Session string `query:"session" required:"true" doc:"Viewer session id"`
}

// session resolves the posted session. Unknown ids stream an expiry error.
func (h *Handler) session(input *humastar.SignalsInput) (*sessions.Session, humastar.Signals, *huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, nil, nil, err
	}
	sess, ok := h.store.Get(signals.String(SignalSession))
	if !ok {
		return nil, nil, h.Stream(func(sse humastar.SSE) { sse.Error(msgSessionExpired) }), nil
	}
	return sess, signals, nil, nil
}

// send streams an update: map commands as one custom event, then the
// sidebar signals.
func send(sse humastar.SSE, u sessions.Update) {
	if len(u.Commands) > 0 {
		sse.Dispatch(MapCommandEvent, map[string]any{"commands": u.Commands})
	}
	if u.Sidebar != nil {
		sse.Signals(u.Sidebar)
	}
}

func (h *Handler) StyleLoaded(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, _, expired, err := h.session(input)
	if sess == nil {
		return expired, err
	}
	u, err := sess.StyleLoaded(ctx)
	if err != nil {
		h.log.Warn().Err(err).Str("session", sess.ID).Msg("map bootstrap failed")
	}
	return h.Stream(func(sse humastar.SSE) { send(sse, u) }), nil
}

func (h *Handler) Click(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, signals, expired, err := h.session(input)
	if sess == nil {
		return expired, err
	}
	p, ok := ClickPoint(signals)
	if !ok {
		return nil, huma.Error400BadRequest("lng and lat signals are required")
	}
	u, err := sess.Click(p)
	if err != nil {
		h.log.Error().Err(err).Str("session", sess.ID).Msg("map click failed")
	}
	return h.Stream(func(sse humastar.SSE) { send(sse, u) }), nil
}

func (h *Handler) Pointer(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, signals, expired, err := h.session(input)
	if sess == nil {
		return expired, err
	}
	u := sess.Pointer(signals.Bool(SignalEnter))
	return h.Stream(func(sse humastar.SSE) { send(sse, u) }), nil
}

func (h *Handler) Fly(ctx context.Context, input *FlyInput) (*huma.StreamResponse, error) {
	sess, _, expired, err := h.session(&humastar.SignalsInput{RawBody: input.RawBody})
	if sess == nil {
		return expired, err
	}
	u, err := sess.Button(input.Token)
	return h.Stream(func(sse humastar.SSE) {
		send(sse, u)
		switch {
		case err == nil, errors.Is(err, district.ErrNotFound):
		case errors.Is(err, sessions.ErrNotReady):
			sse.Error(msgNotReady)
		default:
			h.log.Error().Err(err).Str("session", sess.ID).Str("token", input.Token).Msg("button failed")
			sse.Error(msgButtonFailed)
		}
	}), nil
}

func (h *Handler) MoveEnd(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	sess, signals, expired, err := h.session(input)
	if sess == nil {
		return expired, err
	}
	id := signals.String(SignalFlight)
	if !sess.MoveEnd(id) {
		h.log.Debug().Str("session", sess.ID).Str("flight", id).Msg("move end for unknown flight")
	}
	return h.Stream(func(sse humastar.SSE) {}), nil
}
