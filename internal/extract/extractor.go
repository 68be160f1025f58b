// Package extract provides the independent signal extractors and the
// concurrent runner that fans evidence out to them.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Extractor is one stateless analyzer. Detect is a pure function of
// the evidence: no side effects, no writes to the incident store.
type Extractor interface {
	// Name identifies the extractor in logs and failure metadata.
	Name() string

	// Handles reports whether the extractor consumes this evidence kind.
	Handles(kind domain.EvidenceKind) bool

	// Detect emits zero or more findings for the evidence.
	Detect(ctx context.Context, ev *domain.Evidence) ([]domain.Finding, error)
}

// Runner fans one evidence item out to every extractor that handles
// its kind, bounded by a worker semaphore. An extractor that fails,
// panics, or times out contributes no findings; the pass proceeds
// with whatever succeeded.
type Runner struct {
	mu         sync.RWMutex
	extractors []Extractor
	maxWorkers int
	timeout    time.Duration
}

// NewRunner creates a runner with the given concurrency bound and
// per-extractor timeout.
func NewRunner(maxWorkers int, timeout time.Duration) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{
		maxWorkers: maxWorkers,
		timeout:    timeout,
	}
}

// Register adds an extractor to the runner.
func (r *Runner) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, e)
}

// Count returns the number of registered extractors.
func (r *Runner) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.extractors)
}

// MatchCount returns how many registered extractors handle the kind.
func (r *Runner) MatchCount(kind domain.EvidenceKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.extractors {
		if e.Handles(kind) {
			n++
		}
	}
	return n
}

// RunAll executes every matching extractor concurrently and collects
// their findings. The returned failed slice names extractors that
// errored, panicked, or timed out. Finding order follows extractor
// registration order so the output is deterministic; fusion is
// commutative over it regardless.
func (r *Runner) RunAll(ctx context.Context, ev *domain.Evidence) (findings []domain.Finding, failed []string) {
	r.mu.RLock()
	matching := make([]Extractor, 0, len(r.extractors))
	for _, e := range r.extractors {
		if e.Handles(ev.Kind) {
			matching = append(matching, e)
		}
	}
	r.mu.RUnlock()

	if len(matching) == 0 {
		return nil, nil
	}

	type outcome struct {
		findings []domain.Finding
		err      error
	}

	outcomes := make([]outcome, len(matching))
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxWorkers)

	for i, e := range matching {
		wg.Add(1)
		go func(idx int, ext Extractor) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			detectCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			outcomes[idx] = r.detect(detectCtx, ext, ev)
		}(i, e)
	}

	wg.Wait()

	for i, out := range outcomes {
		if out.err != nil {
			slog.Warn("extractor failed, continuing without it",
				"extractor", matching[i].Name(),
				"evidence_ref", ev.Ref,
				"error", out.err,
			)
			failed = append(failed, matching[i].Name())
			continue
		}
		findings = append(findings, out.findings...)
	}

	return findings, failed
}

// detect runs one extractor, converting panics and timeouts into
// ErrExtractorUnavailable.
func (r *Runner) detect(ctx context.Context, ext Extractor, ev *domain.Evidence) (out struct {
	findings []domain.Finding
	err      error
}) {
	defer func() {
		if rec := recover(); rec != nil {
			out.findings = nil
			out.err = fmt.Errorf("%w: %s panicked: %v", domain.ErrExtractorUnavailable, ext.Name(), rec)
		}
	}()

	found, err := ext.Detect(ctx, ev)
	if err != nil {
		out.err = fmt.Errorf("%w: %s: %v", domain.ErrExtractorUnavailable, ext.Name(), err)
		return out
	}
	if ctx.Err() != nil {
		out.err = fmt.Errorf("%w: %s: %v", domain.ErrExtractorUnavailable, ext.Name(), ctx.Err())
		return out
	}
	out.findings = found
	return out
}
