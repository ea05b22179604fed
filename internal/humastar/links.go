package humastar

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// LinkTable maps operation paths to their RFC 8288 Link header values.
type LinkTable map[string][]string

// Add records a link from one path to another, ignoring duplicates.
func (t LinkTable) Add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range t[from] {
		if existing == val {
			return
		}
	}
	t[from] = append(t[from], val)
}

// Entry links the entry point to every listed path, rel named after the
// path's last segment, plus the OpenAPI discovery rels.
func (t LinkTable) Entry(entry string, paths ...string) {
	for _, p := range paths {
		if p != entry {
			t.Add(entry, p, lastSegment(p))
		}
	}
	t.Add(entry, "/openapi.json", "describedby")
	t.Add(entry, "/openapi.json", "service-desc")
	t.Add(entry, "/docs", "service-doc")
}

// LinkTransformer returns a Huma Transformer that injects Link headers from
// the table, a self link for item endpoints, pagination links from [Pager]
// bodies and action links from [Actor] bodies.
func LinkTransformer(table LinkTable) huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range table[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link with the resolved URL.
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

func lastSegment(p string) string {
	p = strings.TrimSuffix(strings.TrimRight(p, "/"), ".json")
	parts := strings.Split(p, "/")
	return parts[len(parts)-1]
}
