package brief

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Outlook directions.
const (
	Bullish = "bullish"
	Bearish = "bearish"
	Neutral = "neutral"
)

// RuleAnalyst derives commentary from index moves alone. It needs no key
// and never fails on well-formed input.
type RuleAnalyst struct{}

func (RuleAnalyst) Name() string { return SourceRuleBased }

// Analyze implements Analyst.
func (RuleAnalyst) Analyze(_ context.Context, in AnalysisInput) (*AnalysisSection, *Exchange, error) {
	var changes []float64
	var details []string
	for _, idx := range in.Market.Indices {
		if idx.ChangePct == nil {
			continue
		}
		changes = append(changes, *idx.ChangePct)
		details = append(details, fmt.Sprintf("%s %s%%", idx.Name, signed(*idx.ChangePct, 1)))
	}
	avg := 0.0
	for _, c := range changes {
		avg += c
	}
	if len(changes) > 0 {
		avg /= float64(len(changes))
	}

	mood, detail := moodOf(avg)
	theme := mood + ", " + detail + "."
	if len(details) > 0 {
		theme += " " + strings.Join(details[:min(3, len(details))], ", ") + "."
	}

	var risks []string
	for _, idx := range in.Market.Indices {
		if idx.ChangePct == nil {
			continue
		}
		c := *idx.ChangePct
		if c < -2 {
			risks = append(risks, fmt.Sprintf("%s fell %.1f%%, watch whether selling persists", idx.Name, c))
		}
		if c > 5 {
			risks = append(risks, fmt.Sprintf("%s jumped %s%%, short-term pullback risk", idx.Name, signed(c, 1)))
		}
	}
	if in.Macro != nil && in.Macro.Regime == "TIGHTENING" {
		risks = append(risks, "macro liquidity is tightening, systemic risk rising")
	}
	if len(risks) == 0 {
		if avg < 0 {
			risks = append(risks, "broad weakness, keep position sizes in check")
		} else {
			risks = append(risks, "no clear risk signal, keep tracking macro data")
		}
	}

	var watch []string
	if len(in.News.Top5) > 0 {
		watch = append(watch, "follow: "+truncate(in.News.Top5[0].Title, 50))
	}
	for _, c := range changes {
		if math.Abs(c) > 2 {
			watch = append(watch, "whether the large index swings stabilize")
			break
		}
	}
	if len(watch) == 0 {
		watch = append(watch, "next session's open and volume")
	}

	return &AnalysisSection{
		Commentary: Commentary{
			MainTheme:  theme,
			RiskPoints: strings.Join(risks[:min(3, len(risks))], "; "),
			WatchNext:  strings.Join(watch[:min(3, len(watch))], "; "),
		},
		Outlook: ruleOutlook(in.Market.Indices),
		Source:  SourceRuleBased,
		Status:  StatusOK,
	}, nil, nil
}

func moodOf(avg float64) (mood, detail string) {
	switch {
	case avg > 1.5:
		return "Broad global rally", "risk appetite returning"
	case avg > 0.3:
		return "Markets drift higher", "most indices gained"
	case avg < -1.5:
		return "Global markets under pressure", "risk-off sentiment rising"
	case avg < -0.3:
		return "Mild pullback", "several indices weakened"
	default:
		return "Sideways trade", "bulls and bears in balance"
	}
}

func direction(chg, up, down float64) string {
	switch {
	case chg > up:
		return Bullish
	case chg < down:
		return Bearish
	default:
		return Neutral
	}
}

// ruleOutlook covers tech, China and crypto when their benchmark is quoted.
func ruleOutlook(indices []Index) []Outlook {
	find := func(match func(Index) bool) *Index {
		for i := range indices {
			if indices[i].ChangePct != nil && match(indices[i]) {
				return &indices[i]
			}
		}
		return nil
	}
	out := []Outlook{}

	if tech := find(func(i Index) bool {
		return strings.Contains(i.Symbol, "NDX") || strings.Contains(i.Name, "Nasdaq")
	}); tech != nil {
		c := *tech.ChangePct
		second := "AI and semiconductors keep drawing flows"
		if c <= 0 {
			second = "short-term profit taking"
		}
		out = append(out, Outlook{
			Sector:      "Tech / AI",
			Direction:   direction(c, 0, -1),
			Logic:       []string{fmt.Sprintf("Nasdaq %s%%", signed(c, 1)), second},
			WatchStocks: []string{"NVDA", "MSFT", "AAPL"},
			Trigger:     "bullish: holds prior highs; bearish: breaks the 20-day average",
			Risk:        "rich valuations, rate sensitive",
		})
	}

	if cn := find(func(i Index) bool { return strings.EqualFold(i.Market, "CN") }); cn != nil {
		c := *cn.ChangePct
		second := "policy signals remain supportive"
		if c <= 0 {
			second = "waiting for a catalyst"
		}
		out = append(out, Outlook{
			Sector:      "China A-shares",
			Direction:   direction(c, 0.5, -0.5),
			Logic:       []string{fmt.Sprintf("%s %s%%", cn.Name, signed(c, 1)), second},
			WatchStocks: []string{},
			Trigger:     "bullish: volume expands with policy support; bearish: sustained foreign outflows",
			Risk:        "geopolitics, property market uncertainty",
		})
	}

	if btc := find(func(i Index) bool { return strings.Contains(i.Symbol, "BTC") }); btc != nil {
		c := *btc.ChangePct
		second := "institutional inflows continue"
		if c <= 0 {
			second = "profit taking near highs"
		}
		out = append(out, Outlook{
			Sector:      "Crypto",
			Direction:   direction(c, 1, -2),
			Logic:       []string{fmt.Sprintf("BTC %s%%", signed(c, 1)), second},
			WatchStocks: []string{"BTC", "ETH"},
			Trigger:     "bullish: breaks prior high with ETF inflows; bearish: loses key support",
			Risk:        "regulatory uncertainty, liquidity sensitive",
		})
	}
	return out
}
