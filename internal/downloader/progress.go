package downloader

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// Progress creates one tracker per download.
type Progress interface {
	Start(name string, total int64) Tracker
}

// Tracker follows a single download. total may be 0 when unknown.
type Tracker interface {
	Set(written int64)
	Done()
	Fail()
}

type NopProgress struct{}

func (NopProgress) Start(string, int64) Tracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Set(int64) {}
func (nopTracker) Done()     {}
func (nopTracker) Fail()     {}

// Bars renders download progress bars to a terminal.
type Bars struct {
	writer progress.Writer
}

func NewBars(out io.Writer) *Bars {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(200 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)

	go pw.Render()

	return &Bars{writer: pw}
}

func (b *Bars) Start(name string, total int64) Tracker {
	t := &progress.Tracker{
		Message: name,
		Total:   total,
		Units:   progress.UnitsBytes,
	}
	b.writer.AppendTracker(t)
	return barTracker{t}
}

// Stop flushes the final frame and ends rendering.
func (b *Bars) Stop() {
	b.writer.Stop()
}

type barTracker struct {
	t *progress.Tracker
}

func (bt barTracker) Set(written int64) { bt.t.SetValue(written) }
func (bt barTracker) Done()             { bt.t.MarkAsDone() }
func (bt barTracker) Fail()             { bt.t.MarkAsErrored() }
