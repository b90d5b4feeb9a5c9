package providers

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/retry"
)

// StubSet returns deterministic offline collaborators. The CLI uses them to
// exercise a full pipeline run without any provider credentials; tests use
// them as a baseline happy-path fixture.
func StubSet() Set {
	return Set{
		Extractor: stubExtractor{},
		Generator: stubGenerator{},
		Matcher:   stubMatcher{},
		Composer:  stubComposer{},
		Scorer:    stubScorer{},
	}
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, rawURL string) (pipeline.BrandProfile, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return pipeline.BrandProfile{}, retry.Validation("extraction", fmt.Errorf("no retrievable content at %q", rawURL))
	}
	brand := strings.TrimPrefix(parsed.Host, "www.")
	if i := strings.IndexByte(brand, '.'); i > 0 {
		brand = brand[:i]
	}
	if brand != "" {
		brand = strings.ToUpper(brand[:1]) + brand[1:]
	}
	return pipeline.BrandProfile{
		BrandName:  brand,
		Tagline:    fmt.Sprintf("%s, but better", brand),
		Industry:   "software",
		ValueProps: []string{"saves time", "easy setup", "transparent pricing"},
		Claims: []pipeline.Claim{
			{Claim: "trusted by thousands of teams", RiskLevel: "low"},
		},
		ToneMarkers:     []pipeline.ToneMarker{{Tone: "confident", Confidence: 0.8}},
		ConfidenceScore: 0.72,
		WebsiteURL:      rawURL,
	}, nil
}

type stubGenerator struct{}

var stubAngles = []string{"social-proof", "urgency", "benefit-led", "question", "contrast"}

func (stubGenerator) Generate(_ context.Context, req GenerateRequest) ([]pipeline.CopyVariant, error) {
	if req.VariantCount < 1 {
		return nil, retry.Validation("generation", fmt.Errorf("variant count %d", req.VariantCount))
	}
	variants := make([]pipeline.CopyVariant, 0, req.VariantCount)
	for i := 0; i < req.VariantCount; i++ {
		angle := stubAngles[i%len(stubAngles)]
		variants = append(variants, pipeline.CopyVariant{
			ID:           fmt.Sprintf("variant-%d", i+1),
			Headline:     fmt.Sprintf("%s: %s", req.Profile.BrandName, req.Profile.Tagline),
			PrimaryText:  fmt.Sprintf("Discover why teams pick %s for %s.", req.Profile.BrandName, req.Objective),
			CTA:          "Learn More",
			Angle:        angle,
			Emotion:      "trust",
			Persona:      "decision-maker",
			QualityScore: 0.7 + float64(i%3)*0.05,
		})
	}
	return variants, nil
}

type stubMatcher struct{}

func (stubMatcher) Match(_ context.Context, variant pipeline.CopyVariant, imagesPerVariant int) ([]pipeline.ImageMatch, error) {
	if imagesPerVariant < 1 {
		imagesPerVariant = 1
	}
	matches := make([]pipeline.ImageMatch, 0, imagesPerVariant)
	for i := 0; i < imagesPerVariant; i++ {
		matches = append(matches, pipeline.ImageMatch{
			CopyVariantID: variant.ID,
			ImageURL:      fmt.Sprintf("https://images.example.com/%s/%d.jpg", variant.ID, i+1),
			Score:         0.9 - float64(i)*0.1,
			Photographer:  "Stock Library",
		})
	}
	return matches, nil
}

type stubComposer struct{}

var stubFormatSizes = map[string][2]int{
	"square":    {1080, 1080},
	"story":     {1080, 1920},
	"landscape": {1200, 628},
}

func (stubComposer) Compose(_ context.Context, req ComposeRequest) (ComposeResult, error) {
	matched := make(map[string]pipeline.ImageMatch, len(req.Matches))
	for _, match := range req.Matches {
		if _, ok := matched[match.CopyVariantID]; !ok {
			matched[match.CopyVariantID] = match
		}
	}
	result := ComposeResult{}
	for _, variant := range req.Variants {
		if _, ok := matched[variant.ID]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("composition: %s has no image match, skipped", variant.ID))
			continue
		}
		ad := pipeline.ComposedAd{
			ID:            "ad-" + variant.ID,
			CopyVariantID: variant.ID,
			Headline:      variant.Headline,
			PrimaryText:   variant.PrimaryText,
			CTA:           variant.CTA,
		}
		for _, format := range req.Formats {
			size, ok := stubFormatSizes[format]
			if !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("composition: unknown format %q for %s", format, variant.ID))
				continue
			}
			ad.Assets = append(ad.Assets, pipeline.AdAsset{
				Format: format,
				Width:  size[0],
				Height: size[1],
				URL:    path.Join(req.OutputDir, fmt.Sprintf("%s-%s.png", variant.ID, format)),
			})
		}
		result.Ads = append(result.Ads, ad)
	}
	return result, nil
}

type stubScorer struct{}

func (stubScorer) Score(_ context.Context, variant pipeline.CopyVariant) (pipeline.VariantScore, error) {
	score := 55 + float64(len(variant.Headline)%40)
	return pipeline.VariantScore{
		VariantID:  variant.ID,
		Score:      score,
		Confidence: 0.6,
		Strengths:  []string{"clear call to action"},
		Weaknesses: []string{"headline could be more specific"},
		Recommendations: []string{
			"test a shorter headline variant",
		},
	}, nil
}
