// Package progress implements the Reporter interface long-running
// operations (bulk import, reduction) use to surface progress (spec.md
// §4.12's chunking-progress fields driving a visible counter), plus an
// mpb-backed terminal renderer and a no-op implementation for
// non-interactive callers. Grounded on the progress-bar usage in
// other_examples/64a7ecf0_Schaudge-LexicMap__lexicmap-cmd-lib-index-build.go.go.
package progress

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reporter is the minimal progress surface callers depend on; both the
// terminal and no-op implementations satisfy it.
type Reporter interface {
	// Start begins tracking a unit of work with the given total and label
	// (e.g. "sequences", "bytes").
	Start(total int64, label string)
	// Increment advances the current unit of work by n.
	Increment(n int64)
	// SetTotal revises the total when it becomes known mid-operation (e.g.
	// a download's content-length arriving after the first chunk).
	SetTotal(total int64)
	// Finish marks the current unit of work complete.
	Finish()
}

// NoOp discards all progress events; used by tests and non-interactive
// server-mode callers.
type NoOp struct{}

func (NoOp) Start(int64, string) {}
func (NoOp) Increment(int64)     {}
func (NoOp) SetTotal(int64)      {}
func (NoOp) Finish()             {}

// Terminal renders progress as an mpb bar on out (typically os.Stderr).
type Terminal struct {
	out   io.Writer
	pbs   *mpb.Progress
	bar   *mpb.Bar
	label string
}

// NewTerminal constructs a Terminal reporter writing bars to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Start begins a new bar. Any previous bar is left to run to completion by
// the underlying mpb.Progress container; callers should Finish before
// starting a new unit of work.
func (t *Terminal) Start(total int64, label string) {
	t.label = label
	t.pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(t.out))
	t.bar = t.pbs.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(label+": ", decor.WC{W: len(label) + 2, C: decor.DindentRight}),
			decor.Name("", decor.WCSyncSpaceR),
			decor.Any(func(s decor.Statistics) string {
				return humanize.Comma(s.Current) + " / " + humanize.Comma(s.Total)
			}),
		),
		mpb.AppendDecorators(
			decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
			decor.OnComplete(decor.Name(""), ". done"),
		),
	)
}

// Increment advances the active bar by n.
func (t *Terminal) Increment(n int64) {
	if t.bar == nil {
		return
	}
	t.bar.IncrBy(int(n))
}

// SetTotal revises the active bar's total.
func (t *Terminal) SetTotal(total int64) {
	if t.bar == nil {
		return
	}
	t.bar.SetTotal(total, false)
}

// Finish completes the active bar and waits for the render container to
// drain, per mpb's documented shutdown sequence.
func (t *Terminal) Finish() {
	if t.bar == nil {
		return
	}
	t.bar.SetTotal(-1, true)
	if t.pbs != nil {
		t.pbs.Wait()
	}
	t.bar = nil
	t.pbs = nil
}

// HumanBytes formats a byte count for logs and CLI output (spec.md's
// operator-facing diagnostics), e.g. "1.2 GB".
func HumanBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
