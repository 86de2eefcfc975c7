// Package progress renders the harvest status line. Pure
// presentation: nothing here influences control flow.
package progress

import (
	"fmt"
	"io"
)

// Reporter tracks harvest counts and renders a single overwritten
// console line.
type Reporter struct {
	w       io.Writer
	target  int
	noLimit bool
}

// NewReporter writes status to w. When noLimit is set the target is
// not shown.
func NewReporter(w io.Writer, target int, noLimit bool) *Reporter {
	return &Reporter{w: w, target: target, noLimit: noLimit}
}

// Report renders the current state. waiting marks a rate-limit pause,
// attempt is the current retry attempt number.
func (r *Reporter) Report(count int, waiting bool, attempt int) {
	var line string
	if r.noLimit {
		line = fmt.Sprintf("Posts scraped: %d", count)
	} else {
		line = fmt.Sprintf("Posts scraped: %d/%d", count, r.target)
	}
	if waiting {
		line += fmt.Sprintf(" [rate limited, retry %d]", attempt)
	}
	fmt.Fprintf(r.w, "\r%-60s", line)
}

// Done terminates the status line.
func (r *Reporter) Done() {
	fmt.Fprintln(r.w)
}
