// Package district holds the community district feature collection: loading,
// population normalization, id lookup and point hit-testing.
package district

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Property keys on each district feature.
const (
	PropBoroCD     = "boro_cd"
	PropName       = "cd_name"
	PropPopulation = "pop2010"
)

var (
	// ErrNotFound is returned when no feature carries the requested boro_cd.
	ErrNotFound = errors.New("district: not found")
	// ErrFetch is returned when the dataset cannot be retrieved.
	ErrFetch = errors.New("district: fetch failed")
	// ErrDecode is returned when the dataset is not a GeoJSON FeatureCollection.
	ErrDecode = errors.New("district: decode failed")
)

// Collection is a normalized, read-only district feature collection.
type Collection struct {
	fc      *geojson.FeatureCollection
	invalid int
}

// Summary is the flat view of one district used by listings.
type Summary struct {
	BoroCD     string
	Name       string
	Population float64
	Bound      orb.Bound
}

// NewCollection normalizes fc in place and wraps it.
func NewCollection(fc *geojson.FeatureCollection) *Collection {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	invalid := Normalize(fc)
	return &Collection{fc: fc, invalid: invalid}
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.fc.Features) }

// Invalid returns how many features had an unparseable pop2010.
func (c *Collection) Invalid() int { return c.invalid }

// Features returns the underlying features in source order.
func (c *Collection) Features() []*geojson.Feature { return c.fc.Features }

// Feature returns the first feature whose boro_cd equals id.
func (c *Collection) Feature(id string) (*geojson.Feature, error) {
	for _, f := range c.fc.Features {
		if BoroCD(f) == id {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// Geometry returns the geometry of the first feature whose boro_cd equals id.
func (c *Collection) Geometry(id string) (orb.Geometry, error) {
	f, err := c.Feature(id)
	if err != nil {
		return nil, err
	}
	return f.Geometry, nil
}

// Districts returns one summary per feature in source order.
func (c *Collection) Districts() []Summary {
	out := make([]Summary, 0, len(c.fc.Features))
	for _, f := range c.fc.Features {
		s := Summary{
			BoroCD:     BoroCD(f),
			Name:       Name(f),
			Population: Population(f),
		}
		if f.Geometry != nil {
			s.Bound = f.Geometry.Bound()
		}
		out = append(out, s)
	}
	return out
}

// HitTest returns the polygonal features containing p, topmost first. Later
// features in source order draw above earlier ones.
func (c *Collection) HitTest(p orb.Point) []*geojson.Feature {
	var hits []*geojson.Feature
	for i := len(c.fc.Features) - 1; i >= 0; i-- {
		f := c.fc.Features[i]
		if f.Geometry != nil && contains(f.Geometry, p) {
			hits = append(hits, f)
		}
	}
	return hits
}

func contains(g orb.Geometry, p orb.Point) bool {
	if !g.Bound().Contains(p) {
		return false
	}
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Collection:
		for _, sub := range g {
			if contains(sub, p) {
				return true
			}
		}
	}
	return false
}

// MarshalGeoJSON encodes the collection with NaN populations written as null.
func (c *Collection) MarshalGeoJSON() ([]byte, error) {
	out := geojson.NewFeatureCollection()
	out.BBox = c.fc.BBox
	out.ExtraMembers = c.fc.ExtraMembers
	for _, f := range c.fc.Features {
		nf := *f
		nf.Properties = make(geojson.Properties, len(f.Properties))
		for k, v := range f.Properties {
			if fv, ok := v.(float64); ok && (math.IsNaN(fv) || math.IsInf(fv, 0)) {
				v = nil
			}
			nf.Properties[k] = v
		}
		out.Append(&nf)
	}
	return out.MarshalJSON()
}

// BoroCD returns the feature's district id, or "" when absent.
func BoroCD(f *geojson.Feature) string {
	s, _ := f.Properties[PropBoroCD].(string)
	return s
}

// Name returns the feature's display label, or "" when absent.
func Name(f *geojson.Feature) string {
	s, _ := f.Properties[PropName].(string)
	return s
}

// Population returns the normalized pop2010 value, NaN when unknown.
func Population(f *geojson.Feature) float64 {
	if v, ok := f.Properties[PropPopulation].(float64); ok {
		return v
	}
	return math.NaN()
}

// Normalize coerces every feature's pop2010 to an integral float64 or NaN and
// reports how many features ended up NaN.
func Normalize(fc *geojson.FeatureCollection) (invalid int) {
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		v := ParsePopulation(f.Properties[PropPopulation])
		if math.IsNaN(v) {
			invalid++
		}
		f.Properties[PropPopulation] = v
	}
	return invalid
}

// ParsePopulation coerces a raw property value to an integer-valued float64.
// Strings are read as a base-10 leading integer: optional whitespace and
// sign, then digits, anything after the digits ignored. Numbers are
// truncated toward zero. Everything else is NaN.
func ParsePopulation(raw any) float64 {
	switch v := raw.(type) {
	case string:
		return parseLeadingInt(v)
	case float64:
		return truncate(v)
	case float32:
		return truncate(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	default:
		return math.NaN()
	}
}

func truncate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return math.Trunc(v)
}

func parseLeadingInt(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return n
}
