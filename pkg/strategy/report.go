package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/stats"
)

// Snapshot is the structured content of a perfee report
type Snapshot struct {
	Threshold  time.Duration
	OpenSingle int
	OpenGroup  int
	// Entries are ordered by start time, then id
	Entries []entry.Completed
	// Groups are ordered by name
	Groups         []stats.GroupStats
	ShowGroupTrace bool
	GeneratedAt    time.Time
	Took           time.Duration
}

// Render formats s as the perfee report
func Render(s Snapshot) string {
	var b strings.Builder

	b.WriteString("<--------------- Perfee --------------->\n")
	fmt.Fprintf(&b, "  Log elapsed time threshold '%s'.\n", s.Threshold)
	fmt.Fprintf(&b, "%d single entries still open. %d group entries still open.\n", s.OpenSingle, s.OpenGroup)

	for _, e := range s.Entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	for _, g := range s.Groups {
		b.WriteString(g.String(s.ShowGroupTrace))
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "Logs generation started at %s and took %s\n", s.GeneratedAt.Format(entry.TimeLayout), s.Took)
	b.WriteString("<--------------- /Perfee -------------->\n")

	return b.String()
}
