package providers

import (
	"context"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/retry"
)

// The engine consumes every external collaborator through one of these
// interfaces. Adapters classify their failures by returning
// *retry.ProviderError values; anything untyped falls through to the loose
// classifier.

// Extractor analyzes a landing page into a brand profile. Implementations
// return a validation-kind error when no content is retrievable.
type Extractor interface {
	Extract(ctx context.Context, url string) (pipeline.BrandProfile, error)
}

// GenerateRequest carries the generation stage input.
type GenerateRequest struct {
	Profile      pipeline.BrandProfile
	VariantCount int
	Platform     string
	Objective    string
}

// Generator produces ad copy variants. Malformed model output is a
// validation-kind error.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]pipeline.CopyVariant, error)
}

// Matcher finds candidate images for one copy variant. A variant with no
// usable image returns an empty slice, not an error; the engine simply
// omits it from the match set.
type Matcher interface {
	Match(ctx context.Context, variant pipeline.CopyVariant, imagesPerVariant int) ([]pipeline.ImageMatch, error)
}

// ComposeRequest carries the composition stage input.
type ComposeRequest struct {
	Variants  []pipeline.CopyVariant
	Matches   []pipeline.ImageMatch
	OutputDir string
	Formats   []string
}

// ComposeResult carries the composed subset plus per-item render warnings.
// Render failures are collected as warnings, never surfaced as a stage
// error.
type ComposeResult struct {
	Ads      []pipeline.ComposedAd
	Warnings []string
}

// Composer renders matched variants into final ad assets.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (ComposeResult, error)
}

// Scorer evaluates one copy variant on a 0-100 scale.
type Scorer interface {
	Score(ctx context.Context, variant pipeline.CopyVariant) (pipeline.VariantScore, error)
}

// Set bundles the collaborators one engine instance drives.
type Set struct {
	Extractor Extractor
	Generator Generator
	Matcher   Matcher
	Composer  Composer
	Scorer    Scorer
}

// Contract declares how the engine invokes a stage: its per-call timeout
// and the retry policy applied to transient failures. Fan-out stages apply
// the contract per item.
type Contract struct {
	Name    string
	Stage   pipeline.Stage
	Timeout time.Duration
	Policy  retry.Policy
}

// Stage contracts. Model-backed stages use the long-running policy because
// upstream rate limiting and latency variance dominate their failure modes.
var (
	ExtractionContract = Contract{
		Name:    "extraction",
		Stage:   pipeline.StageExtracting,
		Timeout: 2 * time.Minute,
		Policy:  retry.LongRunningExternalCall,
	}
	GenerationContract = Contract{
		Name:    "generation",
		Stage:   pipeline.StageGenerating,
		Timeout: 3 * time.Minute,
		Policy:  retry.LongRunningExternalCall,
	}
	MatchingContract = Contract{
		Name:    "matching",
		Stage:   pipeline.StageMatching,
		Timeout: time.Minute,
		Policy:  retry.Standard,
	}
	CompositionContract = Contract{
		Name:    "composition",
		Stage:   pipeline.StageComposing,
		Timeout: 2 * time.Minute,
		Policy:  retry.Standard,
	}
	ScoringContract = Contract{
		Name:    "scoring",
		Stage:   pipeline.StageScoring,
		Timeout: 2 * time.Minute,
		Policy:  retry.LongRunningExternalCall,
	}
)
