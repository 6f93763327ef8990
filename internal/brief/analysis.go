package brief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

// Analysis sources.
const (
	SourceGemini    = "gemini"
	SourceRuleBased = "rule_based"
	SourceError     = "error"
)

// Commentary is the three-line market read.
type Commentary struct {
	MainTheme  string `json:"main_theme"`
	RiskPoints string `json:"risk_points"`
	WatchNext  string `json:"watch_next"`
}

// Outlook is a per-sector stance with its triggers.
type Outlook struct {
	Sector      string   `json:"sector"`
	Direction   string   `json:"direction"` // bullish, bearish or neutral
	Logic       []string `json:"logic"`
	WatchStocks []string `json:"watch_stocks"`
	Trigger     string   `json:"trigger"`
	Risk        string   `json:"risk"`
}

// AnalysisSection is the commentary block of the brief.
type AnalysisSection struct {
	Commentary Commentary `json:"commentary"`
	Outlook    []Outlook  `json:"outlook"`
	Source     string     `json:"source"`
	Model      string     `json:"model,omitempty"`
	Status     Status     `json:"status"`
}

// AnalysisInput is what an analyst sees.
type AnalysisInput struct {
	Market MarketSection `json:"market"`
	News   NewsSection   `json:"news"`
	Movers MoversSection `json:"movers"`
	Macro  *MacroContext `json:"macro,omitempty"`
}

// Exchange is the raw prompt and reply of a model call, kept for audit.
type Exchange struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Analyst writes commentary. A model-backed analyst returns the exchange it
// made so it can be snapshotted; the rule-based one returns nil.
type Analyst interface {
	Name() string
	Analyze(ctx context.Context, in AnalysisInput) (*AnalysisSection, *Exchange, error)
}

// analyze uses the configured analyst and falls back to rules on any
// failure. Model inputs and outputs are snapshotted.
func (s *Service) analyze(ctx context.Context, runGUID string, in AnalysisInput) AnalysisSection {
	if s.analyst != nil {
		out, ex, err := s.analyst.Analyze(ctx, in)
		if ex != nil {
			s.saveSnapshot(ctx, runGUID, domain.SnapshotLLMInput, map[string]string{"model": ex.Model, "prompt": ex.Prompt})
			s.saveSnapshot(ctx, runGUID, domain.SnapshotLLMOutput, map[string]any{
				"model":    ex.Model,
				"response": ex.Response,
				"ok":       err == nil,
			})
		}
		if err == nil {
			log.Info(log.CatLLM, "Commentary generated", "analyst", s.analyst.Name())
			return *out
		}
		log.Warn(log.CatLLM, "Analyst failed, using rules", "analyst", s.analyst.Name(), "error", err.Error())
	}
	out, _, err := s.rules.Analyze(ctx, in)
	if err != nil {
		return AnalysisSection{
			Commentary: Commentary{
				MainTheme:  "commentary unavailable, see market data",
				RiskPoints: "n/a",
				WatchNext:  "n/a",
			},
			Outlook: []Outlook{},
			Source:  SourceError,
			Status:  StatusError,
		}
	}
	return *out
}

// Reply is the JSON shape models are asked for.
type Reply struct {
	Commentary Commentary `json:"commentary"`
	Outlook    []Outlook  `json:"outlook"`
}

// ParseReply extracts the outermost JSON object from a model reply.
func ParseReply(text string) (*Reply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New("reply holds no JSON object")
	}
	var r Reply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	if strings.TrimSpace(r.Commentary.MainTheme) == "" {
		return nil, errors.New("reply has no main_theme")
	}
	if r.Outlook == nil {
		r.Outlook = []Outlook{}
	}
	for i := range r.Outlook {
		if r.Outlook[i].Logic == nil {
			r.Outlook[i].Logic = []string{}
		}
		if r.Outlook[i].WatchStocks == nil {
			r.Outlook[i].WatchStocks = []string{}
		}
	}
	return &r, nil
}

// Prompt renders the analyst prompt from the brief sections.
func Prompt(in AnalysisInput) string {
	var b strings.Builder
	b.WriteString("You are a senior market strategist. Using only the data below, write a concise daily research note.\n\n")

	b.WriteString("## Major indices\n")
	for _, idx := range in.Market.Indices {
		if idx.Price == nil || idx.ChangePct == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (%s%%, %s)\n", idx.Name, idx.PriceDisplay, signed(*idx.ChangePct, 2), idx.TradingStatus)
	}

	if len(in.News.Top5) > 0 {
		b.WriteString("\n## Top events\n")
		for _, ev := range in.News.Top5 {
			fmt.Fprintf(&b, "%d. %s (source: %s)\n", ev.Rank, ev.Title, ev.Source)
		}
	}

	writeMovers := func(label string, ms []Mover) {
		if len(ms) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n### %s\n", label)
		for _, m := range ms[:min(5, len(ms))] {
			fmt.Fprintf(&b, "- %s (%s): %s%%\n", m.Name, m.Symbol, signed(m.ChangePct, 1))
			if m.Reason.Text != "" && m.Reason.Text != NoReason {
				fmt.Fprintf(&b, "  reason: %s\n", m.Reason.Text)
			}
		}
	}
	if len(in.Movers.Gainers)+len(in.Movers.Losers) > 0 {
		b.WriteString("\n## Star-stock movers\n")
		writeMovers("Gainers", in.Movers.Gainers)
		writeMovers("Losers", in.Movers.Losers)
	}

	if in.Macro != nil {
		b.WriteString("\n## Macro liquidity backdrop\n")
		fmt.Fprintf(&b, "- Liquidity composite: %.1f/100 (%s)\n", in.Macro.Composite, in.Macro.Tier)
		fmt.Fprintf(&b, "- Regime: %s\n", in.Macro.Regime)
	}

	b.WriteString(`
Reply with JSON only, in exactly this shape:
{
  "commentary": {
    "main_theme": "today's main market theme, 1-2 sentences",
    "risk_points": "1-2 concrete risks",
    "watch_next": "what to watch next session"
  },
  "outlook": [
    {
      "sector": "sector name",
      "direction": "bullish | bearish | neutral",
      "logic": ["reason 1", "reason 2"],
      "watch_stocks": ["optional tickers"],
      "trigger": "bullish trigger; bearish trigger",
      "risk": "key risk"
    }
  ]
}
Every claim must be backed by the data or a headline above. This is research support, not investment advice.`)
	return b.String()
}
