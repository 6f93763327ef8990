package brief

import (
	"fmt"
	"strings"
)

// Markdown renders the brief as a Markdown document for terminal display.
func (b *Brief) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Daily brief %s\n\n", b.Date)
	fmt.Fprintf(&sb, "_Status: %s, generated %s_\n\n", b.Status, b.GeneratedAt)

	sb.WriteString("## Markets\n\n")
	if len(b.Market.Indices) == 0 {
		sb.WriteString("No index data.\n\n")
	} else {
		sb.WriteString("| Index | Market | Price | Change | Session |\n")
		sb.WriteString("|---|---|---:|---:|---|\n")
		for _, idx := range b.Market.Indices {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				cell(idx.Name), idx.Market, dash(idx.PriceDisplay), dash(idx.ChangeDisplay), idx.TradingStatus)
		}
		sb.WriteString("\n")
	}
	if b.Market.Summary != "" {
		sb.WriteString(b.Market.Summary + "\n\n")
	}

	if len(b.News.Top5) > 0 {
		sb.WriteString("## Top stories\n\n")
		for _, e := range b.News.Top5 {
			if e.URL != "" {
				fmt.Fprintf(&sb, "%d. [%s](%s)", e.Rank, cell(e.Title), e.URL)
			} else {
				fmt.Fprintf(&sb, "%d. %s", e.Rank, cell(e.Title))
			}
			if e.Source != "" {
				fmt.Fprintf(&sb, " (%s)", e.Source)
			}
			sb.WriteString("\n")
			if len(e.ImpactSectors) > 0 {
				fmt.Fprintf(&sb, "   Sectors: %s\n", strings.Join(e.ImpactSectors, ", "))
			}
		}
		sb.WriteString("\n")
	}

	if len(b.Movers.Gainers)+len(b.Movers.Losers) > 0 {
		sb.WriteString("## Movers\n\n")
		writeMovers(&sb, "Gainers", b.Movers.Gainers)
		writeMovers(&sb, "Losers", b.Movers.Losers)
	}

	c := b.Analysis.Commentary
	if c.MainTheme != "" || len(b.Analysis.Outlook) > 0 {
		sb.WriteString("## Analysis\n\n")
		if c.MainTheme != "" {
			fmt.Fprintf(&sb, "**Theme:** %s\n\n", c.MainTheme)
		}
		if c.RiskPoints != "" {
			fmt.Fprintf(&sb, "**Risks:** %s\n\n", c.RiskPoints)
		}
		if c.WatchNext != "" {
			fmt.Fprintf(&sb, "**Watch next:** %s\n\n", c.WatchNext)
		}
		for _, o := range b.Analysis.Outlook {
			fmt.Fprintf(&sb, "- **%s** %s", o.Sector, o.Direction)
			if o.Trigger != "" {
				fmt.Fprintf(&sb, ": %s", o.Trigger)
			}
			sb.WriteString("\n")
		}
		if len(b.Analysis.Outlook) > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "_Source: %s_\n\n", analysisSource(b.Analysis))
	}

	if len(b.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range b.Errors {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
		sb.WriteString("\n")
	}
	if b.Disclaimer != "" {
		fmt.Fprintf(&sb, "> %s\n", b.Disclaimer)
	}
	return sb.String()
}

func writeMovers(sb *strings.Builder, title string, movers []Mover) {
	if len(movers) == 0 {
		return
	}
	fmt.Fprintf(sb, "**%s**\n\n", title)
	for _, m := range movers {
		fmt.Fprintf(sb, "- %s (%s) %+.2f%%", cell(m.Name), m.Symbol, m.ChangePct)
		if m.Reason.Text != "" {
			fmt.Fprintf(sb, ": %s", m.Reason.Text)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func analysisSource(a AnalysisSection) string {
	if a.Model != "" {
		return a.Source + " (" + a.Model + ")"
	}
	return a.Source
}

// cell keeps table rows on one line.
func cell(s string) string {
	return strings.NewReplacer("|", "/", "\n", " ").Replace(s)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
