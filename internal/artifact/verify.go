package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVerification is returned when a payload fails a critical check.
var ErrVerification = errors.New("artifact verification failed")

// Check is the outcome of one self-check item.
type Check struct {
	Name     string
	OK       bool
	Critical bool
	Detail   string
}

// Report collects the self-check outcomes.
type Report struct {
	Checks []Check
}

// Failures returns the failed checks, critical first.
func (r Report) Failures() []Check {
	var crit, warn []Check
	for _, c := range r.Checks {
		switch {
		case c.OK:
		case c.Critical:
			crit = append(crit, c)
		default:
			warn = append(warn, c)
		}
	}
	return append(crit, warn...)
}

// HasCritical reports whether any critical check failed.
func (r Report) HasCritical() bool {
	for _, c := range r.Checks {
		if !c.OK && c.Critical {
			return true
		}
	}
	return false
}

func (r *Report) add(name string, ok, critical bool, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Critical: critical, Detail: fmt.Sprintf(format, args...)})
}

// Verify runs the self-check. The score and the regime are critical; the
// brief checks only warn. The returned error wraps ErrVerification when a
// critical check fails or the content is not a JSON object.
func Verify(content []byte) (Report, error) {
	var r Report
	doc, err := Decode(content)
	if err != nil {
		r.add("decode", false, true, "%v", err)
		return r, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	composite, ok := lookup(doc, "score", "composite")
	r.add("score", ok && composite != nil, true, "composite=%v", composite)

	regime, ok := lookup(doc, "judgment", "regime")
	r.add("regime", ok && regime != nil && regime != "", true, "regime=%v", regime)

	verifyBrief(&r, doc)

	if r.HasCritical() {
		var names []string
		for _, c := range r.Failures() {
			if c.Critical {
				names = append(names, c.Name)
			}
		}
		return r, fmt.Errorf("%w: missing %s", ErrVerification, strings.Join(names, ", "))
	}
	return r, nil
}

func verifyBrief(r *Report, doc map[string]any) {
	brief, ok := doc[BriefKey].(map[string]any)
	r.add("brief", ok, false, "daily_brief present=%t", ok)
	if !ok {
		return
	}

	indices, _ := dig(brief, "market", "indices").([]any)
	priced := 0
	for _, idx := range indices {
		if m, ok := idx.(map[string]any); ok && m["price"] != nil {
			priced++
		}
	}
	r.add("indices", len(indices) > 0 && priced == len(indices), false, "%d/%d indices priced", priced, len(indices))

	gainers, _ := dig(brief, "movers", "gainers").([]any)
	losers, _ := dig(brief, "movers", "losers").([]any)
	r.add("movers", len(gainers)+len(losers) > 0, false, "%d gainers, %d losers", len(gainers), len(losers))

	events, _ := dig(brief, "news", "top5").([]any)
	r.add("news", len(events) > 0, false, "%d events", len(events))

	theme, _ := dig(brief, "analysis", "commentary", "main_theme").(string)
	source, _ := dig(brief, "analysis", "source").(string)
	r.add("commentary", theme != "", false, "source=%s", source)

	outlook, _ := dig(brief, "analysis", "outlook").([]any)
	r.add("outlook", len(outlook) > 0, false, "%d items", len(outlook))
}

func lookup(doc map[string]any, path ...string) (any, bool) {
	var cur any = doc
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func dig(doc map[string]any, path ...string) any {
	v, _ := lookup(doc, path...)
	return v
}
