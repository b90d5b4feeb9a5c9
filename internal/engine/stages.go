package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/providers"
)

func (e *Engine) runExtraction(ctx context.Context, r *run) error {
	cfg := r.config()
	var profile pipeline.BrandProfile
	err := e.invokeContract(ctx, r.jobID(), providers.ExtractionContract, func(ctx context.Context) error {
		var callErr error
		profile, callErr = e.set.Extractor.Extract(ctx, cfg.URL)
		return callErr
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state.Profile = &profile
	r.mu.Unlock()
	return nil
}

func (e *Engine) runGeneration(ctx context.Context, r *run) error {
	cfg := r.config()
	r.mu.Lock()
	profile := r.state.Profile
	r.mu.Unlock()
	if profile == nil {
		return fmt.Errorf("engine: generation requires an extracted profile")
	}
	var variants []pipeline.CopyVariant
	err := e.invokeContract(ctx, r.jobID(), providers.GenerationContract, func(ctx context.Context) error {
		var callErr error
		variants, callErr = e.set.Generator.Generate(ctx, providers.GenerateRequest{
			Profile:      *profile,
			VariantCount: cfg.VariantCount,
			Platform:     cfg.Platform,
			Objective:    cfg.Objective,
		})
		return callErr
	})
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		return fmt.Errorf("engine: generator produced no variants")
	}
	r.mu.Lock()
	r.state.Variants = variants
	r.mu.Unlock()
	return nil
}

// runMatching fans out one matcher call per variant under a bounded worker
// pool. Each item retries in isolation under the matching contract, and the
// flattened result preserves variant order regardless of completion order.
func (e *Engine) runMatching(ctx context.Context, r *run) error {
	r.mu.Lock()
	variants := append([]pipeline.CopyVariant(nil), r.state.Variants...)
	r.mu.Unlock()

	perVariant := make([][]pipeline.ImageMatch, len(variants))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.matchParallel)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			var matches []pipeline.ImageMatch
			err := e.invokeContract(groupCtx, r.jobID(), providers.MatchingContract, func(ctx context.Context) error {
				var callErr error
				matches, callErr = e.set.Matcher.Match(ctx, variant, e.imagesPerVariant)
				return callErr
			})
			if err != nil {
				return fmt.Errorf("variant %s: %w", variant.ID, err)
			}
			perVariant[i] = matches
			r.heartbeat(fmt.Sprintf("matched images for %s (%d/%d)", variant.ID, i+1, len(variants)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var flattened []pipeline.ImageMatch
	for _, matches := range perVariant {
		flattened = append(flattened, matches...)
	}
	r.mu.Lock()
	r.state.Matches = flattened
	r.mu.Unlock()
	return nil
}

func (e *Engine) runComposition(ctx context.Context, r *run) error {
	cfg := r.config()
	r.mu.Lock()
	req := providers.ComposeRequest{
		Variants:  append([]pipeline.CopyVariant(nil), r.state.Variants...),
		Matches:   append([]pipeline.ImageMatch(nil), r.state.Matches...),
		OutputDir: e.outputDir,
		Formats:   append([]string(nil), cfg.Formats...),
	}
	r.mu.Unlock()

	var result providers.ComposeResult
	err := e.invokeContract(ctx, r.jobID(), providers.CompositionContract, func(ctx context.Context) error {
		var callErr error
		result, callErr = e.set.Composer.Compose(ctx, req)
		return callErr
	})
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		e.logger.Warn("composition warning", "job_id", r.jobID(), "warning", warning)
	}
	r.mu.Lock()
	r.state.ComposedAds = result.Ads
	r.state.Warnings = append(r.state.Warnings, result.Warnings...)
	r.mu.Unlock()
	return nil
}

// runScoring scores every generated variant, matched or not, under the same
// bounded pool as matching. Scores keep variant order.
func (e *Engine) runScoring(ctx context.Context, r *run) error {
	r.mu.Lock()
	variants := append([]pipeline.CopyVariant(nil), r.state.Variants...)
	r.mu.Unlock()

	scores := make([]pipeline.VariantScore, len(variants))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.matchParallel)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			var score pipeline.VariantScore
			err := e.invokeContract(groupCtx, r.jobID(), providers.ScoringContract, func(ctx context.Context) error {
				var callErr error
				score, callErr = e.set.Scorer.Score(ctx, variant)
				return callErr
			})
			if err != nil {
				return fmt.Errorf("variant %s: %w", variant.ID, err)
			}
			scores[i] = score
			r.heartbeat(fmt.Sprintf("scored %s (%d/%d)", variant.ID, i+1, len(variants)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.mu.Lock()
	r.state.Scores = scores
	r.mu.Unlock()
	return nil
}

func (r *run) config() pipeline.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Config.Clone()
}
