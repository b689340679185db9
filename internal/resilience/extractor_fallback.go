package resilience

import (
	"context"

	"github.com/hostline-ai/hostline/internal/extract"
	"github.com/hostline-ai/hostline/internal/session"
)

// ExtractorFallback implements [extract.Extractor] with automatic failover
// across multiple extraction backends. Each backend has its own circuit
// breaker; when the primary (typically the LLM extractor) fails or its
// breaker is open, the next healthy fallback is tried. The rule-based
// extractor is normally registered last, so a call never loses extraction
// entirely just because a model backend is down.
type ExtractorFallback struct {
	group *FallbackGroup[extract.Extractor]
}

// Compile-time interface assertion.
var _ extract.Extractor = (*ExtractorFallback)(nil)

// NewExtractorFallback creates an [ExtractorFallback] with primary as the
// preferred backend.
func NewExtractorFallback(primary extract.Extractor, primaryName string, cfg FallbackConfig) *ExtractorFallback {
	return &ExtractorFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional extractor as a fallback.
func (f *ExtractorFallback) AddFallback(name string, e extract.Extractor) {
	f.group.AddFallback(name, e)
}

// extractResult bundles the two return values so they can pass through the
// generic fallback executor together.
type extractResult struct {
	fields  session.Fields
	signals extract.Signals
}

// Extract runs extraction against the first healthy backend. If the primary
// fails, subsequent fallbacks are tried with the same inputs.
func (f *ExtractorFallback) Extract(ctx context.Context, prior session.Fields, transcript []session.TranscriptEntry, facts []string) (session.Fields, extract.Signals, error) {
	res, err := ExecuteWithResult(f.group, func(e extract.Extractor) (extractResult, error) {
		fields, signals, err := e.Extract(ctx, prior, transcript, facts)
		if err != nil {
			return extractResult{}, err
		}
		return extractResult{fields: fields, signals: signals}, nil
	})
	if err != nil {
		return prior, extract.Signals{}, err
	}
	return res.fields, res.signals, nil
}
