package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/knowledge"
)

// Per-query limits.
const (
	KeywordQueryLimit = 10
	PatternQueryLimit = 5
	TopQueryLimit     = 5
)

// DefaultConcurrency is the number of store queries a category may have in
// flight at once.
const DefaultConcurrency = 4

// Retriever issues the bounded store queries for every category and ranks
// each category's union.
type Retriever struct {
	store       knowledge.Store
	concurrency int
	log         *zap.Logger
}

// NewRetriever returns a Retriever; concurrency below 1 selects DefaultConcurrency.
func NewRetriever(store knowledge.Store, concurrency int, log *zap.Logger) *Retriever {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{store: store, concurrency: concurrency, log: log}
}

type query func(ctx context.Context) ([]knowledge.LearnedEntry, error)

// Retrieve runs keyword, pattern and top-N queries for each category.
// Categories run concurrently; within a category the results are
// concatenated in query order (keywords, pattern, top) before ranking, so
// the outcome does not depend on scheduling.
func (r *Retriever) Retrieve(ctx context.Context, msg string, keywords []string, pa analysis.PromptAnalysis) (*RetrievalResult, error) {
	start := time.Now()
	res := &RetrievalResult{}

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range knowledge.Categories {
		g.Go(func() error {
			merged, err := r.retrieveCategory(gctx, cat, r.queries(cat, msg, keywords, pa))
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", cat, err)
			}
			// Each goroutine owns exactly one slot of the result.
			res.set(cat, Rank(merged))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.Duration("took", time.Since(start)), zap.Int("keywords", len(keywords))}
	for _, cat := range knowledge.Categories {
		fields = append(fields, zap.Int(cat.String(), len(res.Get(cat))))
	}
	r.log.Debug("retrieval complete", fields...)
	return res, nil
}

func (r *Retriever) queries(cat knowledge.Category, msg string, keywords []string, pa analysis.PromptAnalysis) []query {
	var qs []query
	for _, kw := range keywords {
		qs = append(qs, func(ctx context.Context) ([]knowledge.LearnedEntry, error) {
			return r.store.SearchByKeyword(ctx, kw, cat, KeywordQueryLimit)
		})
	}
	if pa.PromptPattern != "" {
		qs = append(qs, func(ctx context.Context) ([]knowledge.LearnedEntry, error) {
			return r.store.SearchByPattern(ctx, pa.PromptPattern, cat, PatternQueryLimit)
		})
	}
	hint := ""
	if cat == knowledge.CategoryMetadataTransformation {
		hint = msg
	}
	qs = append(qs, func(ctx context.Context) ([]knowledge.LearnedEntry, error) {
		return r.store.TopByCategory(ctx, cat, TopQueryLimit, hint)
	})
	return qs
}

// retrieveCategory runs the queries with bounded parallelism and waits for
// all of them. An empty query result is normal and simply contributes
// nothing.
func (r *Retriever) retrieveCategory(ctx context.Context, cat knowledge.Category, qs []query) ([]knowledge.LearnedEntry, error) {
	batches := make([][]knowledge.LearnedEntry, len(qs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, q := range qs {
		g.Go(func() error {
			entries, err := q(gctx)
			if err != nil {
				return err
			}
			batches[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []knowledge.LearnedEntry
	for _, b := range batches {
		for _, e := range b {
			if e.Category != cat {
				r.log.Debug("dropping entry from wrong category",
					zap.String("id", e.ID), zap.Stringer("want", cat), zap.Stringer("got", e.Category))
				continue
			}
			merged = append(merged, e)
		}
	}
	return merged, nil
}
