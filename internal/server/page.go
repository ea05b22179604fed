package server

import (
	"net/http"

	viewerapi "github.com/joeblew999/plat-choropleth/internal/api/viewer"
	"github.com/joeblew999/plat-choropleth/internal/config"
	"github.com/joeblew999/plat-choropleth/internal/style"
	"github.com/joeblew999/plat-choropleth/internal/viewer"
)

// pageData is the viewer.html template context.
type pageData struct {
	Title     string
	SessionID string
	EventsURL string
	Signals   map[string]any
	Options   viewer.MapOptions
	Buttons   []config.Button
	Legend    []style.LegendEntry
	Geocoder  bool
}

// handleViewer starts a session and renders the page bound to it. The map
// itself is built by the shim from Options; everything after that arrives
// over the session's event stream.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	vc := s.config.Viewer

	data := pageData{
		Title:     vc.Sidebar.Title,
		SessionID: sess.ID,
		EventsURL: "/api/v1/viewer/events?session=" + sess.ID,
		Signals:   viewerapi.InitialSignals(sess.ID, sess.Sidebar()),
		Options:   sess.Options(),
		Buttons:   vc.Buttons,
		Legend:    s.ramp.Legend(),
		Geocoder:  vc.Map.Geocoder,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	html, err := s.renderer.Render("viewer.html", data)
	if err != nil {
		s.log.Error().Err(err).Msg("render viewer page")
		s.sessions.Remove(sess.ID)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(html))
}
