package viewer

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-choropleth/internal/controller"
	"github.com/joeblew999/plat-choropleth/internal/humastar"
)

// Signal names the page shim writes before posting a map event. Signal
// names are lowercase due to data-bind behavior.
const (
	SignalSession = "sessionid"
	SignalLng     = "lng"
	SignalLat     = "lat"
	SignalEnter   = "enter"
	SignalFlight  = "flightid"
)

// MapCommandEvent is the DOM event the shim executes map commands from.
const MapCommandEvent = "map-command"

// InitialSignals returns the data-signals object for a new page: the
// session id, the sidebar fields and the event scratch signals.
func InitialSignals(sessionID string, sb controller.SidebarState) map[string]any {
	return map[string]any{
		SignalSession:   sessionID,
		"cdname":        sb.Name,
		"population":    sb.Population,
		"resetdisabled": sb.ResetDisabled,
		"infovisible":   sb.InfoVisible,
		"error":         sb.Error,
		SignalLng:       0,
		SignalLat:       0,
		SignalEnter:     false,
		SignalFlight:    "",
	}
}

// ClickPoint reads the clicked map location.
func ClickPoint(s humastar.Signals) (orb.Point, bool) {
	if !s.Has(SignalLng) || !s.Has(SignalLat) {
		return orb.Point{}, false
	}
	return orb.Point{s.Float(SignalLng), s.Float(SignalLat)}, true
}
