package viewer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/district"
	"github.com/joeblew999/plat-choropleth/internal/resilience"
	"github.com/joeblew999/plat-choropleth/internal/service"
	"github.com/joeblew999/plat-choropleth/internal/style"
	sessions "github.com/joeblew999/plat-choropleth/internal/viewer"
)

type env struct {
	api       humatest.TestAPI
	store     *sessions.Store
	districts *service.DistrictService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	ramp, err := style.NewRamp(district.PropPopulation, cfg.Ramp)
	require.NoError(t, err)
	log := zerolog.Nop()

	loader := district.NewLoader("", time.Second, resilience.RetryConfig{MaxAttempts: 1}, log)
	bus := service.NewEventBus()
	districts := service.NewDistrictService(loader, "../../district/testdata/districts.geojson",
		"/api/v1/districts.geojson", bus, nil, log)

	store := sessions.NewStore(sessions.Deps{Config: &cfg, Dataset: districts, Ramp: ramp, Log: log}, time.Hour)

	api := humachi.New(chi.NewMux(), huma.DefaultConfig("viewer test", "0.1.0"))
	NewHandler(store, bus, districts.DataURL, log).RegisterRoutes(api)
	return &env{api: humatest.Wrap(t, api), store: store, districts: districts}
}

func (e *env) post(path, session string, extra map[string]any) string {
	body := map[string]any{SignalSession: session}
	for k, v := range extra {
		body[k] = v
	}
	return e.api.Post(path, body).Body.String()
}

func TestUnknownSessionExpires(t *testing.T) {
	e := newEnv(t)

	out := e.post("/api/v1/viewer/style-loaded", "nope", nil)
	assert.Contains(t, out, msgSessionExpired)

	resp := e.api.Get("/api/v1/viewer/events?session=nope")
	assert.Contains(t, resp.Body.String(), msgSessionExpired)
}

func TestInvalidSignals(t *testing.T) {
	e := newEnv(t)

	resp := e.api.Post("/api/v1/viewer/click", "Content-Type: application/json", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStyleLoadedThenClick(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()

	out := e.post("/api/v1/viewer/style-loaded", sess.ID, nil)
	assert.Contains(t, out, MapCommandEvent)
	require.True(t, sess.Ready())

	out = e.post("/api/v1/viewer/click", sess.ID, map[string]any{SignalLng: -73.99, SignalLat: 40.685})
	assert.Contains(t, out, `"cdname":"Park Slope"`)
	assert.Contains(t, out, `"population":"2010 Population: 104.71k"`)
	assert.Contains(t, out, `"resetdisabled":false`)
	assert.Contains(t, out, MapCommandEvent)

	resp := e.api.Post("/api/v1/viewer/click", map[string]any{SignalSession: sess.ID})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestClickMissSendsNothing(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()
	e.post("/api/v1/viewer/style-loaded", sess.ID, nil)

	out := e.post("/api/v1/viewer/click", sess.ID, map[string]any{SignalLng: 0, SignalLat: 0})
	assert.NotContains(t, out, "cdname")
	assert.NotContains(t, out, MapCommandEvent)
}

func TestFlyBeforeReady(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()

	out := e.post("/api/v1/viewer/fly/306", sess.ID, nil)
	assert.Contains(t, out, msgNotReady)
}

func TestFlyAndReset(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()
	e.post("/api/v1/viewer/style-loaded", sess.ID, nil)

	out := e.post("/api/v1/viewer/fly/306", sess.ID, nil)
	assert.Contains(t, out, MapCommandEvent)
	assert.Contains(t, out, `"infovisible":false`)
	sb := sess.Sidebar()
	assert.False(t, sb.ResetDisabled)
	assert.False(t, sb.InfoVisible)

	out = e.post("/api/v1/viewer/fly/reset", sess.ID, nil)
	assert.Contains(t, out, `"cdname":"Click a district for more information"`)
	sb = sess.Sidebar()
	assert.True(t, sb.ResetDisabled)
	assert.True(t, sb.InfoVisible)
}

func TestFlyUnknownDistrictIsIgnored(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()
	e.post("/api/v1/viewer/style-loaded", sess.ID, nil)
	before := sess.Sidebar()

	out := e.post("/api/v1/viewer/fly/555", sess.ID, nil)
	assert.NotContains(t, out, "error")
	assert.Equal(t, before, sess.Sidebar())
}

func TestPointerAndMoveEnd(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()
	e.post("/api/v1/viewer/style-loaded", sess.ID, nil)

	out := e.post("/api/v1/viewer/pointer", sess.ID, map[string]any{SignalEnter: true})
	assert.Contains(t, out, MapCommandEvent)

	resp := e.api.Post("/api/v1/viewer/move-end", map[string]any{SignalSession: sess.ID, SignalFlight: "unknown"})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestEventsStreamsPendingAndReloads(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()
	e.post("/api/v1/viewer/style-loaded", sess.ID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = e.districts.Reload(context.Background())
	}()

	resp := e.api.GetCtx(ctx, "/api/v1/viewer/events?session="+sess.ID)
	out := resp.Body.String()
	assert.Contains(t, out, MapCommandEvent)
	assert.Contains(t, out, "resource-changed")
	assert.Contains(t, out, "districts.geojson?v=2")
}

func TestEventsEndsWhenSessionEvicted(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()

	go func() {
		time.Sleep(50 * time.Millisecond)
		e.store.Remove(sess.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp := e.api.GetCtx(ctx, "/api/v1/viewer/events?session="+sess.ID)
	assert.Contains(t, resp.Body.String(), msgSessionExpired)
	assert.NoError(t, ctx.Err())
}

func TestInitialSignals(t *testing.T) {
	e := newEnv(t)
	sess := e.store.Create()

	s := InitialSignals(sess.ID, sess.Sidebar())
	assert.Equal(t, sess.ID, s[SignalSession])
	assert.Equal(t, "Click a district for more information", s["cdname"])
	assert.Equal(t, true, s["resetdisabled"])
	assert.Equal(t, true, s["infovisible"])
}
