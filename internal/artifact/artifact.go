// Package artifact defines the published JSON payload, its canonical
// encoding, and the digest used to decide whether a publish is a no-op.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/macropulse/macropulse/internal/fetch"
	"github.com/macropulse/macropulse/internal/series"
	"github.com/macropulse/macropulse/internal/transform"
)

// SchemaVersion is the payload schema, not a revision counter.
const SchemaVersion = "1.0"

// VolatileKey names the stamp excluded from comparisons, at any depth.
const VolatileKey = "generated_at"

// FetchKey is the top-level key holding the fetch report. Comparisons keep
// only each entry's key and rows; where a series was served from does not
// change the data.
const FetchKey = "fetch"

var provenanceFields = []string{"source", "id", "status", "error", "note"}

// BriefKey is the top-level key holding the daily brief.
const BriefKey = "daily_brief"

// DataRange bounds the panel the payload was computed from.
type DataRange struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	TradingDays int    `json:"trading_days"`
}

// Meta describes the report.
type Meta struct {
	ReportDate string    `json:"report_date"`
	DataRange  DataRange `json:"data_range"`
}

// ScoreSummary is the headline score.
type ScoreSummary struct {
	Composite float64        `json:"composite"`
	Tier      transform.Tier `json:"tier"`
	TierColor string         `json:"tier_color"`
}

// Artifact is the published payload.
type Artifact struct {
	Version         string                              `json:"version"`
	GeneratedAt     string                              `json:"generated_at"`
	Meta            Meta                                `json:"meta"`
	Score           ScoreSummary                        `json:"score"`
	Advice          transform.Advice                    `json:"advice"`
	AssetOutlook    transform.Outlook                   `json:"asset_outlook"`
	IndicatorScores map[string]transform.IndicatorScore `json:"indicator_scores"`
	Weights         map[string]float64                  `json:"weights"`
	Judgment        transform.Judgment                  `json:"judgment"`
	Readings        map[string]transform.Reading        `json:"readings"`
	Changes         map[string]map[string]float64       `json:"changes"`
	Dimensions      map[string]transform.Dimension      `json:"dimensions"`
	Quality         map[string]transform.Quality        `json:"quality"`
	Fetch           []fetch.Entry                       `json:"fetch"`
	DailyBrief      json.RawMessage                     `json:"daily_brief,omitempty"`
}

// Build assembles the payload from a transform result.
func Build(res *transform.Result, report fetch.Report, windows []int, now time.Time) *Artifact {
	start, end, days := res.Range()
	judgment := res.Judgment
	dims := judgment.Dimensions
	judgment.Dimensions = nil

	return &Artifact{
		Version:     SchemaVersion,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Meta: Meta{
			ReportDate: judgment.Date,
			DataRange: DataRange{
				Start:       formatDay(start),
				End:         formatDay(end),
				TradingDays: days,
			},
		},
		Score: ScoreSummary{
			Composite: res.Score.Composite,
			Tier:      res.Score.Tier,
			TierColor: res.Score.TierColor,
		},
		Advice:          res.Score.Advice,
		AssetOutlook:    res.Score.Outlook,
		IndicatorScores: res.Score.Indicators,
		Weights:         res.Score.Weights,
		Judgment:        judgment,
		Readings:        res.Readings(),
		Changes:         res.Changes(windows),
		Dimensions:      dims,
		Quality:         res.Quality,
		Fetch:           report.Entries,
	}
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return series.FormatDate(t)
}

// WithBrief attaches an encoded brief.
func (a *Artifact) WithBrief(brief any) error {
	if brief == nil {
		a.DailyBrief = nil
		return nil
	}
	raw, err := json.Marshal(brief)
	if err != nil {
		return fmt.Errorf("failed to encode brief: %w", err)
	}
	a.DailyBrief = raw
	return nil
}

// Encode renders the payload in its canonical published form: two-space
// indented JSON with sorted map keys and a trailing newline.
func Encode(a *Artifact) ([]byte, error) {
	return encode(a)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses published content into a generic document.
func Decode(content []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if doc == nil {
		return nil, errors.New("failed to decode artifact: not a JSON object")
	}
	return doc, nil
}

// Normalize returns the comparison form of content: every generated_at key
// and the fetch provenance removed, the remainder compactly re-encoded with
// sorted keys.
func Normalize(content []byte) ([]byte, error) {
	doc, err := Decode(content)
	if err != nil {
		return nil, err
	}
	stripVolatile(doc)
	stripProvenance(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize artifact: %w", err)
	}
	return out, nil
}

func stripProvenance(doc map[string]any) {
	entries, _ := doc[FetchKey].([]any)
	for _, e := range entries {
		if m, ok := e.(map[string]any); ok {
			for _, f := range provenanceFields {
				delete(m, f)
			}
		}
	}
}

func stripVolatile(v any) {
	switch t := v.(type) {
	case map[string]any:
		delete(t, VolatileKey)
		for _, child := range t {
			stripVolatile(child)
		}
	case []any:
		for _, child := range t {
			stripVolatile(child)
		}
	}
}

// Digest is the hex sha256 of the normalized content.
func Digest(content []byte) (string, error) {
	norm, err := Normalize(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(norm)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether two payloads are structurally equal ignoring
// generated_at.
func Equal(a, b []byte) (bool, error) {
	na, err := Normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(na, nb), nil
}

// MergeBrief replaces daily_brief in published content, keeping every other
// section's value as published, and restamps generated_at.
func MergeBrief(current []byte, brief any, now time.Time) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(current, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode published artifact: %w", err)
	}
	if doc == nil {
		return nil, errors.New("failed to decode published artifact: not a JSON object")
	}
	raw, err := json.Marshal(brief)
	if err != nil {
		return nil, fmt.Errorf("failed to encode brief: %w", err)
	}
	stamp, _ := json.Marshal(now.UTC().Format(time.RFC3339))

	doc[BriefKey] = raw
	doc[VolatileKey] = stamp
	return encode(doc)
}

// Headline is the part of a payload used in commit messages and summaries.
type Headline struct {
	Date   string
	Tier   string
	Score  string
	Regime string
}

// ReadHeadline extracts the headline fields. Missing fields are left empty.
func ReadHeadline(content []byte) Headline {
	var doc struct {
		Meta struct {
			ReportDate string `json:"report_date"`
		} `json:"meta"`
		Score struct {
			Composite json.Number `json:"composite"`
			Tier      string      `json:"tier"`
		} `json:"score"`
		Judgment struct {
			Regime string `json:"regime"`
		} `json:"judgment"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return Headline{}
	}
	return Headline{
		Date:   doc.Meta.ReportDate,
		Tier:   doc.Score.Tier,
		Score:  doc.Score.Composite.String(),
		Regime: doc.Judgment.Regime,
	}
}
