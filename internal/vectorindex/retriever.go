package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// Metadata keys set on every retrieved document.
const (
	MetaSource = "source"
	MetaChunk  = "chunk"
	MetaSlug   = "slug"
)

// index is one loaded, immutable version of a persona index.
type index struct {
	slug     string
	version  string
	passages []storedPassage
}

type hit struct {
	p     *storedPassage
	score float64
}

// search returns the k passages most similar to q by cosine similarity. Ties
// break by source path, then chunk position.
func (ix *index) search(q []float64, k int) []hit {
	qn := norm(q)
	hits := make([]hit, 0, len(ix.passages))
	for i := range ix.passages {
		p := &ix.passages[i]
		hits = append(hits, hit{p: p, score: cosine(q, qn, p.Vector)})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		if hits[a].p.Source != hits[b].p.Source {
			return hits[a].p.Source < hits[b].p.Source
		}
		return hits[a].p.Chunk < hits[b].p.Chunk
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func cosine(q []float64, qn float64, v []float64) float64 {
	if qn == 0 || len(q) != len(v) {
		return 0
	}
	var dot float64
	for i := range q {
		dot += q[i] * v[i]
	}
	vn := norm(v)
	if vn == 0 {
		return 0
	}
	return dot / (qn * vn)
}

// indexRetriever adapts a loaded index to eino's retriever.Retriever.
type indexRetriever struct {
	ix       *index
	embedder embedding.Embedder
	topK     int
}

var _ retriever.Retriever = (*indexRetriever)(nil)

// Retrieve embeds query and returns the top passages with their scores.
// retriever.WithTopK overrides the k the retriever was created with.
func (r *indexRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	k := r.topK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &k}, opts...)
	if o.TopK != nil && *o.TopK > 0 {
		k = *o.TopK
	}

	vecs, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	hits := r.ix.search(vecs[0], k)
	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		if o.ScoreThreshold != nil && h.score < *o.ScoreThreshold {
			continue
		}
		d := &schema.Document{
			ID:      h.p.Source + "#" + strconv.Itoa(h.p.Chunk),
			Content: h.p.Text,
			MetaData: map[string]any{
				MetaSource: h.p.Source,
				MetaChunk:  h.p.Chunk,
				MetaSlug:   r.ix.slug,
			},
		}
		docs = append(docs, d.WithScore(h.score))
	}
	return docs, nil
}

// emptyRetriever answers every query with no documents.
type emptyRetriever struct{}

// Empty returns a retriever with no passages, for ungrounded answers.
func Empty() retriever.Retriever { return emptyRetriever{} }

func (emptyRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return nil, nil
}
