// Package memo memoizes engine analyses in an LRU keyed by a hash of the
// analysis kind, the dataset, the query and a fingerprint of the dataset
// folder. Changing, adding or removing a file in the folder changes the
// fingerprint, so stale entries are never served; they age out of the LRU.
//
// Cached results are shared between callers and must be treated as read-only.
package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

// Analyzer wraps a pipeline.Analyzer with the memo cache.
type Analyzer struct {
	inner   pipeline.Analyzer
	root    string
	cache   *lruCache[any]
	metrics *observability.Metrics
}

var _ pipeline.Analyzer = (*Analyzer)(nil)

// New creates a cache decorator around inner. root is the data root the
// dataset names resolve against.
func New(inner pipeline.Analyzer, root string, maxEntries int, metrics *observability.Metrics) *Analyzer {
	return &Analyzer{
		inner:   inner,
		root:    root,
		cache:   newLRUCache[any](maxEntries),
		metrics: metrics,
	}
}

// Fingerprint hashes the names, sizes and modification times of the entries
// directly inside folder.
func Fingerprint(folder string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", e.Name(), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (a *Analyzer) key(kind string, datasets []string, query any) (string, bool) {
	prints := make([]string, len(datasets))
	for i, d := range datasets {
		if !filepath.IsLocal(d) {
			return "", false
		}
		fp, err := Fingerprint(filepath.Join(a.root, d))
		if err != nil {
			return "", false
		}
		prints[i] = fp
	}
	data, err := json.Marshal(struct {
		Kind         string   `json:"kind"`
		Datasets     []string `json:"datasets"`
		Fingerprints []string `json:"fingerprints"`
		Query        any      `json:"query"`
	}{kind, datasets, prints, query})
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// lookup serves key from the cache or computes and stores it. Errors are
// never cached. Folders that cannot be fingerprinted bypass the cache, so the
// inner analyzer reports the failure.
func lookup[T any](a *Analyzer, kind string, datasets []string, query any, compute func() (T, error)) (T, error) {
	key, ok := a.key(kind, datasets, query)
	if !ok {
		a.metrics.MemoLookups.WithLabelValues("bypass").Inc()
		return compute()
	}
	if v, ok := a.cache.get(key); ok {
		if out, ok := v.(T); ok {
			a.metrics.MemoLookups.WithLabelValues("hit").Inc()
			return out, nil
		}
	}
	a.metrics.MemoLookups.WithLabelValues("miss").Inc()
	out, err := compute()
	if err != nil {
		return out, err
	}
	a.cache.put(key, out)
	return out, nil
}

// Dates is not cached; listing a folder is what the fingerprint costs anyway.
func (a *Analyzer) Dates(ctx context.Context, dataset string) ([]pipeline.DatedFile, error) {
	return a.inner.Dates(ctx, dataset)
}

func (a *Analyzer) Occurrence(ctx context.Context, dataset string, q pipeline.OccurrenceQuery) (*pipeline.OccurrenceResult, error) {
	return lookup(a, "occurrence", []string{dataset}, q, func() (*pipeline.OccurrenceResult, error) {
		return a.inner.Occurrence(ctx, dataset, q)
	})
}

func (a *Analyzer) Average(ctx context.Context, dataset string, q pipeline.AverageQuery) (*pipeline.AverageResult, error) {
	return lookup(a, "average", []string{dataset}, q, func() (*pipeline.AverageResult, error) {
		return a.inner.Average(ctx, dataset, q)
	})
}

// Samples is cached on the dataset folder only. Results published to Kafka
// are therefore published once per distinct input.
func (a *Analyzer) Samples(ctx context.Context, dataset string, q pipeline.SampleQuery) (*pipeline.SampleReport, error) {
	return lookup(a, "samples", []string{dataset}, q, func() (*pipeline.SampleReport, error) {
		return a.inner.Samples(ctx, dataset, q)
	})
}

// SamplesByIndex fingerprints the water body folder and every index folder.
// A missing index folder bypasses the cache.
func (a *Analyzer) SamplesByIndex(ctx context.Context, waterbody string, indices []string, q pipeline.SampleQuery) ([]pipeline.IndexSamples, error) {
	datasets := make([]string, 0, len(indices)+1)
	datasets = append(datasets, waterbody)
	for _, idx := range indices {
		datasets = append(datasets, filepath.Join(waterbody, idx))
	}
	return lookup(a, "samples_by_index", datasets, q, func() ([]pipeline.IndexSamples, error) {
		return a.inner.SamplesByIndex(ctx, waterbody, indices, q)
	})
}

func (a *Analyzer) Enhance(ctx context.Context, dataset, date string) (*domain.EnhancedFrame, error) {
	return lookup(a, "enhance", []string{dataset}, date, func() (*domain.EnhancedFrame, error) {
		return a.inner.Enhance(ctx, dataset, date)
	})
}

func (a *Analyzer) Reference(ctx context.Context, dataset string, q pipeline.ReferenceQuery) (*pipeline.ReferenceView, error) {
	return lookup(a, "reference", []string{dataset}, q, func() (*pipeline.ReferenceView, error) {
		return a.inner.Reference(ctx, dataset, q)
	})
}
