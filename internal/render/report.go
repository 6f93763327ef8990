package render

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/pipeline"
	"github.com/macropulse/macropulse/internal/pubsub"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

const digestLen = 12

// ShortDigest truncates a digest for display.
func ShortDigest(d string) string {
	if len(d) > digestLen {
		return d[:digestLen]
	}
	return d
}

// State colors a run state.
func State(s domain.RunState) string {
	switch s {
	case domain.RunStatePublished:
		return OKStyle.Render(string(s))
	case domain.RunStateUnchanged:
		return MutedStyle.Render(string(s))
	case domain.RunStateFailed:
		return ErrorStyle.Render(string(s))
	default:
		return WarnStyle.Render(string(s))
	}
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, LabelStyle.Render(label), ValueStyle.Render(value)) + "\n"
}

// RunReport summarizes a finished run. runErr is the error Run returned.
func RunReport(rep *pipeline.Report, runErr error) string {
	var sb strings.Builder
	title := "macropulse run"
	if rep.DryRun {
		title += " (dry run)"
	}
	sb.WriteString(TitleStyle.Render(title) + "\n")
	sb.WriteString(row("run", rep.RunID))
	sb.WriteString(row("mode", string(rep.Mode)))
	sb.WriteString(row("outcome", State(rep.Outcome)))
	if rep.Headline.Date != "" {
		sb.WriteString(row("report", fmt.Sprintf("%s %s %s %s", rep.Headline.Date, rep.Headline.Tier, rep.Headline.Score, rep.Headline.Regime)))
	}
	if rep.Digest != "" {
		sb.WriteString(row("digest", ShortDigest(rep.Digest)))
	}
	if rep.PreviousDigest != "" && rep.PreviousDigest != rep.Digest {
		sb.WriteString(row("replaced", ShortDigest(rep.PreviousDigest)))
	}
	if len(rep.Fetch.Entries) > 0 {
		fetched := fmt.Sprintf("%d/%d series", rep.Fetch.Succeeded(), len(rep.Fetch.Entries))
		if failed := rep.Fetch.Failed(); len(failed) > 0 {
			fetched += WarnStyle.Render(" failed: " + strings.Join(failed, ", "))
		}
		sb.WriteString(row("fetch", fetched))
	}
	switch {
	case rep.Distributed && rep.Retried:
		sb.WriteString(row("delivery", OKStyle.Render("delivered (retry of pending artifact)")))
	case rep.Distributed:
		sb.WriteString(row("delivery", OKStyle.Render("delivered")))
	}
	if len(rep.Phases) > 0 {
		sb.WriteString(row("phases", phaseTimes(rep.Phases)))
	}
	for _, c := range rep.Verify.Failures() {
		style := WarnStyle
		if c.Critical {
			style = ErrorStyle
		}
		sb.WriteString(row("check", style.Render(c.Name)+" "+c.Detail))
	}
	if runErr != nil {
		label := "error"
		if rep.FailedPhase != "" {
			label = rep.FailedPhase
		}
		sb.WriteString(row(label, ErrorStyle.Render(runErr.Error())))
	}
	return sb.String()
}

func phaseTimes(phases map[string]time.Duration) string {
	names := make([]string, 0, len(phases))
	for n := range phases {
		names = append(names, n)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s %s", n, phases[n].Round(time.Millisecond)))
	}
	return strings.Join(parts, ", ")
}

// VerifyReport lists the self-check outcome of an artifact.
func VerifyReport(path string, r artifact.Report) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("verify "+path) + "\n")
	for _, c := range r.Checks {
		mark := OKStyle.Render("ok  ")
		switch {
		case c.OK:
		case c.Critical:
			mark = ErrorStyle.Render("FAIL")
		default:
			mark = WarnStyle.Render("warn")
		}
		line := mark + " " + c.Name
		if c.Detail != "" {
			line += MutedStyle.Render("  " + c.Detail)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

var historyColumns = []struct {
	title string
	width int
}{
	{"STARTED", 17},
	{"MODE", 6},
	{"STATE", 10},
	{"DIGEST", 13},
	{"DELIVERED", 10},
	{"DURATION", 9},
	{"DETAIL", 0},
}

// History renders recent runs newest first. pending is the published digest
// still awaiting distribution, or empty.
func History(runs []*domain.Run, pending string) string {
	var sb strings.Builder
	if len(runs) == 0 {
		sb.WriteString(MutedStyle.Render("no runs recorded") + "\n")
	} else {
		header := make([]string, len(historyColumns))
		for i, c := range historyColumns {
			header[i] = cellStyle(c.width).Inherit(HeaderStyle).Render(c.title)
		}
		sb.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, header...), " ") + "\n")
		for _, r := range runs {
			sb.WriteString(historyRow(r) + "\n")
		}
	}
	if pending != "" {
		sb.WriteString(WarnStyle.Render("pending delivery: "+ShortDigest(pending)) + "\n")
	}
	return sb.String()
}

func historyRow(r *domain.Run) string {
	digest := r.PublishedDigest()
	delivered := ""
	if r.Distributed() {
		delivered = "yes"
	}
	detail := ""
	if r.State() == domain.RunStateFailed {
		detail = r.FailedPhase() + ": " + r.ErrorMessage()
	}
	duration := ""
	if r.FinishedAt() != nil {
		duration = r.Duration().Round(time.Second).String()
	}
	values := []string{
		r.StartedAt().UTC().Format("2006-01-02 15:04"),
		r.Mode(),
		State(r.State()),
		ShortDigest(digest),
		delivered,
		duration,
		detail,
	}
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = cellStyle(historyColumns[i].width).Render(v)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " ")
}

func cellStyle(width int) lipgloss.Style {
	s := lipgloss.NewStyle()
	if width > 0 {
		s = s.Width(width)
	}
	return s
}

// Progress renders one run event as a status line, or "" for events that
// are not shown.
func Progress(ev pubsub.Event[pipeline.Progress]) string {
	p := ev.Payload
	switch ev.Type {
	case pubsub.RunStarted:
		return MutedStyle.Render(fmt.Sprintf("run %s (%s)", p.RunID, p.Mode))
	case pubsub.PhaseFinished:
		return OKStyle.Render("ok  ") + " " + p.Phase + MutedStyle.Render(" "+p.Took.Round(time.Millisecond).String())
	case pubsub.PhaseFailed:
		return ErrorStyle.Render("FAIL") + " " + p.Phase + MutedStyle.Render(" "+p.Err)
	default:
		return ""
	}
}
