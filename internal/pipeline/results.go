package pipeline

// Typed stage results. Each stage consumes the previous stage's output plus
// the original config, and its result is appended to JobState before the
// next stage is invoked. All types are plain data: serializable, no
// behavior, no aliased mutable state once stored.

// Claim is a factual statement extracted from the target site along with the
// compliance risk of repeating it in ad copy.
type Claim struct {
	Claim     string `json:"claim"`
	RiskLevel string `json:"risk_level"`
}

// ToneMarker captures one detected brand-voice attribute.
type ToneMarker struct {
	Tone       string  `json:"tone"`
	Confidence float64 `json:"confidence"`
}

// BrandProfile is the extraction stage output.
type BrandProfile struct {
	BrandName       string       `json:"brand_name"`
	Tagline         string       `json:"tagline,omitempty"`
	Industry        string       `json:"industry,omitempty"`
	ValueProps      []string     `json:"value_propositions,omitempty"`
	Claims          []Claim      `json:"claims,omitempty"`
	ToneMarkers     []ToneMarker `json:"tone_markers,omitempty"`
	ConfidenceScore float64      `json:"confidence_score"`
	WebsiteURL      string       `json:"website_url"`
}

// CopyVariant is one generated ad copy candidate.
type CopyVariant struct {
	ID           string   `json:"id"`
	Headline     string   `json:"headline"`
	PrimaryText  string   `json:"primary_text"`
	CTA          string   `json:"cta"`
	Angle        string   `json:"angle,omitempty"`
	Emotion      string   `json:"emotion,omitempty"`
	Persona      string   `json:"persona,omitempty"`
	QualityScore float64  `json:"quality_score"`
	ClaimsUsed   []string `json:"claims_used,omitempty"`
}

// ImageMatch pairs a copy variant with a stock image. Variants without a
// usable image are simply absent from the match set.
type ImageMatch struct {
	CopyVariantID string  `json:"copy_variant_id"`
	ImageURL      string  `json:"image_url"`
	Score         float64 `json:"score"`
	Photographer  string  `json:"photographer,omitempty"`
	SourcePage    string  `json:"source_page,omitempty"`
}

// AdAsset is one rendered artifact of a composed ad.
type AdAsset struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// ComposedAd is the composition stage output for one matched variant.
type ComposedAd struct {
	ID            string    `json:"id"`
	CopyVariantID string    `json:"copy_variant_id"`
	Headline      string    `json:"headline"`
	PrimaryText   string    `json:"primary_text"`
	CTA           string    `json:"cta"`
	Assets        []AdAsset `json:"assets,omitempty"`
}

// VariantScore is the scoring stage output for one copy variant. Score is
// bounded to [0,100].
type VariantScore struct {
	VariantID       string   `json:"variant_id"`
	Score           float64  `json:"score"`
	Confidence      float64  `json:"confidence"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
