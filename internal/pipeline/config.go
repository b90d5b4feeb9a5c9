package pipeline

import (
	"fmt"
	"strings"
)

// Config describes one content-generation run. It is immutable once a job
// starts; the engine copies it into JobState and never writes it again.
type Config struct {
	URL          string   `json:"url" yaml:"url"`
	VariantCount int      `json:"variant_count" yaml:"variant_count"`
	Platform     string   `json:"platform" yaml:"platform"`
	Objective    string   `json:"objective" yaml:"objective"`
	Formats      []string `json:"formats,omitempty" yaml:"formats,omitempty"`
	UserRef      string   `json:"user_ref,omitempty" yaml:"user_ref,omitempty"`
	CampaignRef  string   `json:"campaign_ref,omitempty" yaml:"campaign_ref,omitempty"`
}

const (
	defaultVariantCount = 3
	maxVariantCount     = 10
)

// Normalized returns a copy with defaults applied, or an error when the
// config cannot start a job. Validation failures are never retried.
func (c Config) Normalized() (Config, error) {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return Config{}, fmt.Errorf("pipeline: config requires a url")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return Config{}, fmt.Errorf("pipeline: config url %q must be http(s)", c.URL)
	}
	if c.VariantCount == 0 {
		c.VariantCount = defaultVariantCount
	}
	if c.VariantCount < 1 || c.VariantCount > maxVariantCount {
		return Config{}, fmt.Errorf("pipeline: variant count %d out of range [1,%d]", c.VariantCount, maxVariantCount)
	}
	if c.Platform == "" {
		c.Platform = "meta"
	}
	if c.Objective == "" {
		c.Objective = "conversions"
	}
	if len(c.Formats) == 0 {
		c.Formats = []string{"square", "story"}
	}
	return c, nil
}

// Clone returns a deep copy so stored snapshots never alias caller slices.
func (c Config) Clone() Config {
	out := c
	if len(c.Formats) > 0 {
		out.Formats = make([]string, len(c.Formats))
		copy(out.Formats, c.Formats)
	}
	return out
}
