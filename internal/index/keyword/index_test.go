package keyword

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

func chunk(tenantID, docID string, ordinal int, content string) source.Chunk {
	return source.Chunk{
		DocumentID:   docID,
		DocumentName: docID + ".md",
		TenantID:     tenantID,
		Ordinal:      ordinal,
		Content:      content,
	}
}

func TestAddRequiresTenant(t *testing.T) {
	idx := New()
	err := idx.Add(chunk("", "doc-1", 0, "some content"))
	if !errors.Is(err, pkgerrors.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestSearchRequiresTenant(t *testing.T) {
	idx := New()
	_, err := idx.Search(context.Background(), "", "widget", 5)
	if !errors.Is(err, pkgerrors.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := New()
	mustAdd(t, idx, chunk("tenant-a", "faq", 0, "widget widget widget pricing"))
	mustAdd(t, idx, chunk("tenant-a", "faq", 1, "shipment times and carriers"))
	mustAdd(t, idx, chunk("tenant-a", "faq", 2, "widget colours available in blue"))

	hits, err := idx.Search(context.Background(), "tenant-a", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Ordinal != 0 {
		t.Errorf("expected the term-dense chunk first, got ordinal %d", hits[0].Chunk.Ordinal)
	}
	for _, h := range hits {
		if h.Score <= 0 || h.Score >= 1 {
			t.Errorf("score %f outside (0,1)", h.Score)
		}
	}
}

func TestTenantNamespacesAreIsolated(t *testing.T) {
	idx := New()
	mustAdd(t, idx, chunk("tenant-a", "doc", 0, "blue widget specifications"))
	mustAdd(t, idx, chunk("tenant-b", "doc", 0, "blue widget specifications"))

	hits, err := idx.Search(context.Background(), "tenant-a", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if h.Chunk.TenantID != "tenant-a" {
			t.Fatalf("tenant-a query returned chunk owned by %q", h.Chunk.TenantID)
		}
	}

	hits, err = idx.Search(context.Background(), "tenant-c", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("unknown tenant should see nothing, got %d hits", len(hits))
	}
}

func TestReAddReplacesChunk(t *testing.T) {
	idx := New()
	mustAdd(t, idx, chunk("tenant-a", "doc", 0, "widget pricing"))
	mustAdd(t, idx, chunk("tenant-a", "doc", 0, "return policy"))

	hits, err := idx.Search(context.Background(), "tenant-a", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale postings survived a replace, got %d hits", len(hits))
	}
	if got := idx.ChunkCount("tenant-a"); got != 1 {
		t.Errorf("expected 1 chunk after replace, got %d", got)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	idx := New()
	for i := 0; i < 4; i++ {
		mustAdd(t, idx, chunk("tenant-a", "manual", i, fmt.Sprintf("widget section %d", i)))
	}
	mustAdd(t, idx, chunk("tenant-a", "faq", 0, "widget questions"))

	idx.DeleteDocument("tenant-a", "manual")

	hits, err := idx.Search(context.Background(), "tenant-a", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.DocumentID != "faq" {
		t.Errorf("expected only the faq chunk to survive, got %v", hits)
	}
	if got := idx.ChunkCount("tenant-a"); got != 1 {
		t.Errorf("expected 1 chunk after cascade delete, got %d", got)
	}
}

func TestSearchTieBreaksOnChunkID(t *testing.T) {
	idx := New()
	// Identical content gives identical scores.
	mustAdd(t, idx, chunk("tenant-a", "b-doc", 0, "widget details"))
	mustAdd(t, idx, chunk("tenant-a", "a-doc", 0, "widget details"))

	hits, err := idx.Search(context.Background(), "tenant-a", "widget", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID() > hits[1].Chunk.ID() {
		t.Errorf("ties must order by chunk ID: got %q before %q", hits[0].Chunk.ID(), hits[1].Chunk.ID())
	}
}

func mustAdd(t *testing.T, idx *Index, c source.Chunk) {
	t.Helper()
	if err := idx.Add(c); err != nil {
		t.Fatalf("adding chunk %s: %v", c.ID(), err)
	}
}
