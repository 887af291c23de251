package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

// Metadata attribute keys stored alongside each chunk in Chroma.
const (
	metaDocumentID   = "document_id"
	metaDocumentName = "document_name"
	metaOrdinal      = "ordinal"
	metaTokenCount   = "token_count"
	metaSection      = "section"
	metaPage         = "page"
)

// Chroma is a remote vector index backed by a Chroma server. Each tenant
// maps to its own collection, so cross-tenant reads cannot be expressed.
// Embedding happens server-side through the collection's configured
// embedding function.
type Chroma struct {
	client chroma.Client
	prefix string

	mu   sync.Mutex
	cols map[string]chroma.Collection
}

// NewChroma connects to a Chroma server at baseURL. Collection names are
// derived as "<prefix>-<tenant>".
func NewChroma(baseURL, prefix string) (*Chroma, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("creating chroma client: %w", err)
	}
	return &Chroma{
		client: client,
		prefix: prefix,
		cols:   make(map[string]chroma.Collection),
	}, nil
}

func (c *Chroma) collection(ctx context.Context, tenantID string) (chroma.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.cols[tenantID]; ok {
		return col, nil
	}
	name := fmt.Sprintf("%s-%s", c.prefix, tenantID)
	col, err := c.client.GetOrCreateCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", name, err)
	}
	c.cols[tenantID] = col
	return col, nil
}

func (c *Chroma) Upsert(ctx context.Context, tenantID string, chunks []source.Chunk) error {
	if tenantID == "" {
		return pkgerrors.ErrMissingTenant
	}
	if len(chunks) == 0 {
		return nil
	}
	col, err := c.collection(ctx, tenantID)
	if err != nil {
		return err
	}
	texts := make([]string, 0, len(chunks))
	metas := make([]chroma.DocumentMetadata, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.TenantID != tenantID {
			return fmt.Errorf("%w: chunk %s belongs to tenant %q, not %q",
				pkgerrors.ErrTenantIsolation, chunk.ID(), chunk.TenantID, tenantID)
		}
		texts = append(texts, chunk.Content)
		metas = append(metas, chroma.NewDocumentMetadata(
			chroma.NewStringAttribute(metaDocumentID, chunk.DocumentID),
			chroma.NewStringAttribute(metaDocumentName, chunk.DocumentName),
			chroma.NewIntAttribute(metaOrdinal, int64(chunk.Ordinal)),
			chroma.NewIntAttribute(metaTokenCount, int64(chunk.TokenCount)),
			chroma.NewStringAttribute(metaSection, chunk.Section),
			chroma.NewIntAttribute(metaPage, int64(chunk.Page)),
		))
	}
	if err := col.Add(ctx,
		chroma.WithTexts(texts...),
		chroma.WithIDGenerator(chroma.NewULIDGenerator()),
		chroma.WithMetadatas(metas...),
	); err != nil {
		return fmt.Errorf("adding chunks to chroma: %w", err)
	}
	return nil
}

func (c *Chroma) Search(ctx context.Context, tenantID, query string, limit int) ([]Hit, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	col, err := c.collection(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	res, err := col.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}
	docs := docGroups[0]
	metas := metaGroups[0]
	dists := distGroups[0]

	hits := make([]Hit, 0, len(docs))
	for i := range docs {
		chunk := source.Chunk{
			TenantID: tenantID,
			Content:  docs[i].ContentString(),
		}
		if meta := metas[i]; meta != nil {
			chunk.DocumentID, _ = meta.GetString(metaDocumentID)
			chunk.DocumentName, _ = meta.GetString(metaDocumentName)
			if ord, ok := meta.GetInt(metaOrdinal); ok {
				chunk.Ordinal = int(ord)
			}
			if tc, ok := meta.GetInt(metaTokenCount); ok {
				chunk.TokenCount = int(tc)
			}
			chunk.Section, _ = meta.GetString(metaSection)
			if page, ok := meta.GetInt(metaPage); ok {
				chunk.Page = int(page)
			}
		}
		// Chroma reports distances; smaller is closer.
		score := 1 / (1 + float64(dists[i]))
		hits = append(hits, Hit{Chunk: chunk, Score: score})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Chunk.ID() < hits[b].Chunk.ID()
	})
	return hits, nil
}

func (c *Chroma) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return pkgerrors.ErrMissingTenant
	}
	col, err := c.collection(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(metaDocumentID, documentID))); err != nil {
		return fmt.Errorf("deleting document %s from chroma: %w", documentID, err)
	}
	return nil
}
