package attribution

import (
	"strings"
	"testing"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/internal/synthesis"
)

func docSource(docName, section, content string) source.Ranked {
	c := source.Chunk{
		DocumentID:   "doc-1",
		DocumentName: docName,
		TenantID:     "tenant-a",
		Section:      section,
		Content:      content,
	}
	return source.FromChunk(c, 0.8)
}

func recSource(kind source.RecordKind, content string) source.Ranked {
	r := source.Record{ID: "r1", TenantID: "tenant-a", Kind: kind, Name: "Blue Widget"}
	ranked := source.FromRecord(r, 1.0)
	ranked.Content = content
	return ranked
}

func extSource(content string) source.Ranked {
	return source.FromSnippet(source.Snippet{Title: "Review", URL: "https://example.com/r", Text: content}, 0.6)
}

func sectionCtx(sources ...source.Ranked) synthesis.Context {
	return synthesis.Context{
		Sections: []synthesis.Section{{Heading: "Blue Widget", Sources: sources}},
	}
}

func TestLabelPerKind(t *testing.T) {
	cases := []struct {
		name   string
		ranked source.Ranked
		want   string
	}{
		{"catalog record", recSource(source.RecordCatalog, "x"), "our catalog"},
		{"service record", recSource(source.RecordService, "x"), "our records"},
		{"document with section", docSource("pricing-guide.md", "Discounts", "x"), "pricing-guide.md, Discounts"},
		{"document without section", docSource("pricing-guide.md", "", "x"), "pricing-guide.md"},
		{"external snippet", extSource("x"), "external product information"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Label(tc.ranked); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRenderIncludesCitations(t *testing.T) {
	tracker := New(true)
	out := tracker.Render(sectionCtx(
		recSource(source.RecordCatalog, "Blue Widget costs 500 dollars"),
		docSource("faq.md", "Pricing", "Discounts available for bulk orders"),
	))
	if !strings.Contains(out.Text, "[Source: our catalog; faq.md, Pricing]") {
		t.Errorf("citation line missing from:\n%s", out.Text)
	}
	if len(out.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(out.Citations))
	}
	if got := out.Citations[0].Sources; len(got) != 2 || got[0] != "record:r1" {
		t.Errorf("unexpected citation sources %v", got)
	}
}

func TestRenderDisabledKeepsFactsDropsLabels(t *testing.T) {
	ctx := sectionCtx(recSource(source.RecordCatalog, "Blue Widget costs 500 dollars"))

	enabled := New(true).Render(ctx)
	disabled := New(false).Render(ctx)

	if !strings.Contains(disabled.Text, "Blue Widget costs 500 dollars") {
		t.Error("disabling attribution must not drop facts")
	}
	if strings.Contains(disabled.Text, "[Source:") {
		t.Error("disabled attribution must not emit citation labels")
	}
	if len(disabled.Citations) != 0 {
		t.Errorf("expected no citations, got %d", len(disabled.Citations))
	}
	if !strings.Contains(enabled.Text, "[Source:") {
		t.Error("enabled attribution should emit citation labels")
	}
}

func TestRenderNoVerifiedInformation(t *testing.T) {
	out := New(true).Render(synthesis.Context{NoVerifiedInformation: true})
	if out.Text != NoVerifiedInformation {
		t.Errorf("expected the no-information marker, got %q", out.Text)
	}
	if len(out.Citations) != 0 {
		t.Error("no-information context must not carry citations")
	}
}
