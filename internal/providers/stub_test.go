package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/retry"
)

func TestStubExtractorDerivesBrandFromHost(t *testing.T) {
	set := StubSet()
	profile, err := set.Extractor.Extract(context.Background(), "https://www.acme.io/pricing")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if profile.BrandName != "Acme" {
		t.Fatalf("brand = %q, want Acme", profile.BrandName)
	}
	if profile.WebsiteURL != "https://www.acme.io/pricing" {
		t.Fatalf("website url not carried through: %q", profile.WebsiteURL)
	}
	if profile.ConfidenceScore <= 0 {
		t.Fatalf("missing confidence score")
	}
}

func TestStubExtractorRejectsUnusableURL(t *testing.T) {
	set := StubSet()
	_, err := set.Extractor.Extract(context.Background(), "not a url")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var provErr *retry.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != retry.KindValidation {
		t.Fatalf("expected KindValidation, got %v", err)
	}
}

func TestStubGeneratorProducesRequestedCount(t *testing.T) {
	set := StubSet()
	req := GenerateRequest{
		Profile:      pipeline.BrandProfile{BrandName: "Acme", Tagline: "ship faster"},
		VariantCount: 5,
		Objective:    "conversions",
	}
	variants, err := set.Generator.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(variants) != 5 {
		t.Fatalf("got %d variants, want 5", len(variants))
	}
	seen := map[string]bool{}
	for _, variant := range variants {
		if seen[variant.ID] {
			t.Fatalf("duplicate variant id %s", variant.ID)
		}
		seen[variant.ID] = true
		if variant.Headline == "" || variant.CTA == "" {
			t.Fatalf("incomplete variant: %+v", variant)
		}
	}
}

func TestStubComposerSkipsUnmatchedVariantsWithWarning(t *testing.T) {
	set := StubSet()
	req := ComposeRequest{
		Variants: []pipeline.CopyVariant{
			{ID: "variant-1", Headline: "One"},
			{ID: "variant-2", Headline: "Two"},
		},
		Matches: []pipeline.ImageMatch{
			{CopyVariantID: "variant-1", ImageURL: "https://img/1.jpg"},
		},
		Formats:   []string{"square", "story"},
		OutputDir: "out",
	}
	result, err := set.Composer.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(result.Ads) != 1 || result.Ads[0].CopyVariantID != "variant-1" {
		t.Fatalf("unexpected ads: %+v", result.Ads)
	}
	if len(result.Ads[0].Assets) != 2 {
		t.Fatalf("expected one asset per format, got %d", len(result.Ads[0].Assets))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected a warning for variant-2, got %v", result.Warnings)
	}
}

func TestStubComposerWarnsOnUnknownFormat(t *testing.T) {
	set := StubSet()
	req := ComposeRequest{
		Variants: []pipeline.CopyVariant{{ID: "variant-1"}},
		Matches:  []pipeline.ImageMatch{{CopyVariantID: "variant-1"}},
		Formats:  []string{"billboard"},
	}
	result, err := set.Composer.Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected unknown-format warning, got %v", result.Warnings)
	}
	if len(result.Ads) != 1 || len(result.Ads[0].Assets) != 0 {
		t.Fatalf("ad should exist without assets: %+v", result.Ads)
	}
}

func TestStubScorerStaysInRange(t *testing.T) {
	set := StubSet()
	score, err := set.Scorer.Score(context.Background(), pipeline.CopyVariant{ID: "variant-1", Headline: "A very long headline for scoring"})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Score < 0 || score.Score > 100 {
		t.Fatalf("score %f out of range", score.Score)
	}
	if score.VariantID != "variant-1" {
		t.Fatalf("score not attributed to the variant: %+v", score)
	}
}
