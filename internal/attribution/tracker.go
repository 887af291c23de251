// Package attribution labels every context section with where its
// information came from, so generated answers can cite their sources
// claim by claim.
package attribution

import (
	"fmt"
	"strings"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/internal/synthesis"
)

// NoVerifiedInformation is the marker the answer layer surfaces when the
// context contains nothing citable.
const NoVerifiedInformation = "No verified information is available for this question."

// Tracker renders citation labels. A disabled tracker still assembles
// the context text, just without the labels.
type Tracker struct {
	enabled bool
}

func New(enabled bool) *Tracker {
	return &Tracker{enabled: enabled}
}

// Annotated is a synthesized context rendered to text, with per-section
// citation labels when attribution is enabled.
type Annotated struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Citation maps one context section to a human-readable source label.
type Citation struct {
	Heading string   `json:"heading"`
	Label   string   `json:"label"`
	Sources []string `json:"sources"`
}

// Render produces the final context text. Sections appear in synthesis
// order; each carries the citation for its backing sources.
func (t *Tracker) Render(ctx synthesis.Context) Annotated {
	if ctx.NoVerifiedInformation {
		return Annotated{Text: NoVerifiedInformation}
	}

	var b strings.Builder
	var citations []Citation
	for i, sec := range ctx.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(sec.Heading)
		b.WriteString("\n")
		for _, rs := range sec.Sources {
			b.WriteString(strings.TrimSpace(rs.Content))
			b.WriteString("\n")
		}
		if !t.enabled {
			continue
		}
		labels := labelSet(sec.Sources)
		ids := make([]string, 0, len(sec.Sources))
		for _, rs := range sec.Sources {
			ids = append(ids, rs.ID)
		}
		citation := Citation{Heading: sec.Heading, Label: strings.Join(labels, "; "), Sources: ids}
		citations = append(citations, citation)
		b.WriteString("[Source: ")
		b.WriteString(citation.Label)
		b.WriteString("]\n")
	}
	return Annotated{Text: b.String(), Citations: citations}
}

// Label returns the citation text for a single ranked source.
func Label(rs source.Ranked) string {
	switch rs.Kind {
	case source.KindRecord:
		if rs.Record != nil && rs.Record.Kind == source.RecordCatalog {
			return "our catalog"
		}
		return "our records"
	case source.KindDocument:
		if rs.Chunk != nil {
			if rs.Chunk.Section != "" {
				return fmt.Sprintf("%s, %s", rs.Chunk.DocumentName, rs.Chunk.Section)
			}
			return rs.Chunk.DocumentName
		}
		return rs.Attribution
	case source.KindExternal:
		return "external product information"
	default:
		return rs.Attribution
	}
}

// labelSet collects distinct labels in source order.
func labelSet(sources []source.Ranked) []string {
	seen := make(map[string]struct{}, len(sources))
	var out []string
	for _, rs := range sources {
		label := Label(rs)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}
