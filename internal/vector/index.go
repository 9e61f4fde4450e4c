package vector

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_scout/internal/engine"
	"github.com/anatolykoptev/go_scout/internal/funnel"
)

const embedParallelism = 4

// VectorStore is the store surface the index needs. Satisfied by *Store.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Match, error)
}

// Index maps postings onto the vector store under content-stable ids.
// Implements funnel.VectorIndex.
type Index struct {
	store VectorStore
	embed Embedder
}

// NewIndex wires an index over a store and an embedder.
func NewIndex(store VectorStore, embed Embedder) *Index {
	return &Index{store: store, embed: embed}
}

// StableID returns the idempotency key for a posting: the first 24 hex
// characters of sha256 over sourceUrl|applyUrl|title. Reindexing the same
// posting overwrites instead of duplicating.
func StableID(p funnel.JobPosting) string {
	sum := sha256.Sum256([]byte(p.SourceURL + "|" + p.ApplyURL + "|" + p.Title))
	return fmt.Sprintf("%x", sum[:12])
}

// RenderText flattens a posting into the text that gets embedded. Field
// order is fixed so identical postings embed identically.
func RenderText(p funnel.JobPosting) string {
	var b strings.Builder
	add := func(label, val string) {
		if val != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, val)
		}
	}
	add("title", p.Title)
	add("company", p.Company)
	add("location", p.Location)
	add("remote", string(p.Remote))
	add("employment", string(p.EmploymentType))
	add("seniority", string(p.Seniority))
	add("team", p.Team)
	add("responsibilities", strings.Join(p.Responsibilities, "; "))
	add("requirements", strings.Join(p.Requirements, "; "))
	add("nice to have", strings.Join(p.NiceToHave, "; "))
	add("skills", strings.Join(p.Skills, ", "))
	add("compensation", p.Compensation)
	add("source", p.SourceURL)
	add("apply", p.ApplyURL)
	add("description", p.Description)
	return b.String()
}

// IndexPostings embeds every posting under a bounded pool and upserts them
// in one batch. Postings without a source URL are skipped; a failed embed
// skips that posting, not the batch.
func (ix *Index) IndexPostings(ctx context.Context, postings []funnel.JobPosting) error {
	var indexable []funnel.JobPosting
	for _, p := range postings {
		if p.SourceURL == "" {
			continue
		}
		indexable = append(indexable, p)
	}
	if len(indexable) == 0 {
		return nil
	}

	vecs, errs := engine.MapLimit(ctx, embedParallelism, indexable, func(ctx context.Context, p funnel.JobPosting) (Vector, error) {
		values, err := ix.embed.Embed(ctx, RenderText(p))
		if err != nil {
			return Vector{}, err
		}
		return Vector{
			ID:     StableID(p),
			Values: values,
			Metadata: map[string]any{
				"title":      p.Title,
				"company":    p.Company,
				"location":   p.Location,
				"source_url": p.SourceURL,
			},
		}, nil
	})

	var batch []Vector
	var failed int
	for i, err := range errs {
		if err != nil {
			failed++
			continue
		}
		batch = append(batch, vecs[i])
	}
	if len(batch) == 0 {
		return fmt.Errorf("index postings: all %d embeds failed", failed)
	}
	return ix.store.Upsert(ctx, batch)
}

// RetrieveRelevant embeds userContext once, queries the index, and joins
// matches back to the input postings by stable id. Stale index entries that
// match nothing in the input are dropped.
func (ix *Index) RetrieveRelevant(ctx context.Context, postings []funnel.JobPosting, userContext string, topK int) ([]funnel.RetrievedJob, error) {
	if len(postings) == 0 {
		return nil, nil
	}
	byID := make(map[string]funnel.JobPosting, len(postings))
	for _, p := range postings {
		if p.SourceURL == "" {
			continue
		}
		byID[StableID(p)] = p
	}

	vec, err := ix.embed.Embed(ctx, userContext)
	if err != nil {
		return nil, fmt.Errorf("embed context: %w", err)
	}

	matches, err := ix.store.Query(ctx, vec, topK, nil)
	if err != nil {
		return nil, err
	}

	var out []funnel.RetrievedJob
	for _, m := range matches {
		p, ok := byID[m.ID]
		if !ok {
			continue
		}
		out = append(out, funnel.RetrievedJob{Job: p, RetrievalScore: m.Score})
	}
	return out, nil
}
