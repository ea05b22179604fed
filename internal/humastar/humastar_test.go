package humastar

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalsAccessors(t *testing.T) {
	in := SignalsInput{RawBody: []byte(`{"sessionid":"abc","lng":-73.98,"lat":"40.7","enter":true}`)}
	s, err := in.MustParse()
	require.NoError(t, err)

	assert.Equal(t, "abc", s.String("sessionid"))
	assert.InDelta(t, -73.98, s.Float("lng"), 1e-9)
	assert.InDelta(t, 40.7, s.Float("lat"), 1e-9)
	assert.True(t, s.Bool("enter"))
	assert.True(t, s.Has("enter"))
	assert.False(t, s.Has("flightid"))
	assert.Equal(t, "", s.String("lng"))
	assert.Zero(t, s.Float("missing"))
}

func TestMustParseRejectsGarbage(t *testing.T) {
	in := SignalsInput{RawBody: []byte(`not json`)}
	_, err := in.MustParse()
	assert.Error(t, err)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Paginate(items, 2, 2)
	assert.Equal(t, []int{3, 4}, p.Data)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, []string{
		`</x?offset=0&limit=2>; rel="first"`,
		`</x?offset=0&limit=2>; rel="prev"`,
		`</x?offset=4&limit=2>; rel="next"`,
		`</x?offset=4&limit=2>; rel="last"`,
	}, p.PaginationLinks("/x"))

	all := Paginate(items, 0, 0)
	assert.Len(t, all.Data, 5)
	assert.Equal(t, 5, all.Limit)

	past := Paginate(items, 10, 2)
	assert.Empty(t, past.Data)
	assert.NotNil(t, past.Data)

	empty := Paginate([]int(nil), 0, 0)
	assert.Nil(t, empty.PaginationLinks("/x"))
}

func TestActionDefFor(t *testing.T) {
	def := ActionDef{Rel: "fly", Pattern: "/api/v1/viewer/fly/%s", Method: "POST", Title: "Fly"}
	a := def.For("306", "Fly to Park Slope")
	assert.Equal(t, `</api/v1/viewer/fly/306>; rel="fly"; method="POST"; title="Fly to Park Slope"`, a.LinkHeader())
	assert.Equal(t, "Fly", def.For("101", "").Title)
}

func TestLinkTableEntry(t *testing.T) {
	lt := LinkTable{}
	lt.Entry("/health", "/health", "/api/v1/districts", "/api/v1/districts.geojson")
	lt.Add("/health", "/docs", "service-doc")

	assert.Equal(t, []string{
		`</api/v1/districts>; rel="districts"`,
		`</api/v1/districts.geojson>; rel="districts.geojson"`,
		`</openapi.json>; rel="describedby"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	}, lt["/health"])
}

func TestDispatchTargetsDocument(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sse := SSE{datastar.NewSSE(rec, req)}

	require.NoError(t, sse.Dispatch("map-command", map[string]any{"commands": []string{}}))
	body := rec.Body.String()
	assert.Contains(t, body, "[document]")
	assert.Contains(t, body, `"map-command"`)
	assert.Contains(t, body, "bubbles: true")
}
