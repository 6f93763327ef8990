package publish

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/macropulse/macropulse/internal/log"
)

const maxDiffLines = 20

// DiffStat summarizes a line diff.
type DiffStat struct {
	Added   int
	Removed int
	Lines   []string // "+ line" / "- line", capped
}

// LineDiff compares two documents line by line.
func LineDiff(old, cur []byte) DiffStat {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(old), string(cur))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var st DiffStat
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if prefix == "+ " {
				st.Added++
			} else {
				st.Removed++
			}
			if len(st.Lines) < maxDiffLines {
				st.Lines = append(st.Lines, prefix+strings.TrimSpace(line))
			}
		}
	}
	return st
}

func logDiff(old, cur []byte) {
	st := LineDiff(old, cur)
	log.Info(log.CatPublish, "Artifact diff", "added", st.Added, "removed", st.Removed)
	for _, l := range st.Lines {
		log.Debug(log.CatPublish, l)
	}
}
