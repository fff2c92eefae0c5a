package ascii

import (
	"fmt"
	"io"
	"time"
)

type ProgressBar struct {
	Width, Min, Max                   int
	Start, Done, Active, Pending, End byte
	Out                               io.Writer
}

func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{
		Width:   termWidth(w),
		Min:     10,
		Max:     40,
		Out:     w,
		Start:   '[',
		Done:    '=',
		Active:  '>',
		Pending: ' ',
		End:     ']',
	}
}

func (p *ProgressBar) Generate(pct float64, pre, post string) []byte {
	if pct < 0 {
		pct = 0
	} else if pct > 1 {
		pct = 1
	}
	curWidth := p.Width - (len(pre) + len(post) + 2)
	curWidth = min(max(curWidth, p.Min), p.Max)
	buf := make([]byte, curWidth)

	doneLen := int(float64(curWidth) * pct)
	for i := 0; i < doneLen; i++ {
		buf[i] = p.Done
	}
	if doneLen < curWidth {
		buf[doneLen] = p.Active
	}
	for i := doneLen + 1; i < curWidth; i++ {
		buf[i] = p.Pending
	}
	return fmt.Appendf(nil, "%s%c%s%c%s\n", pre, p.Start, buf, p.End, post)
}

// Progress shows a canvas bar and a tile bar for an archive run.
// Redraws are limited to one per interval, the final state is always drawn by Finish.
type Progress struct {
	bar      *ProgressBar
	lines    *Lines
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{
		bar:      NewProgressBar(w),
		lines:    NewLines(w),
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Update records the current canvas and tile, tile totals of 0 indicate a direct asset
func (p *Progress) Update(canvas, canvases, tile, tiles int) {
	if now := p.now(); now.Sub(p.last) >= p.interval || (tiles > 0 && tile == tiles) {
		p.last = now
		p.draw(canvas, canvases, tile, tiles)
	}
}

// Finish draws the completed state and leaves it on screen
func (p *Progress) Finish(canvases int) {
	p.draw(canvases, canvases, 0, 0)
}

func (p *Progress) draw(canvas, canvases, tile, tiles int) {
	pct := 0.0
	if canvases > 0 {
		pct = float64(canvas) / float64(canvases)
	}
	p.lines.Add(p.bar.Generate(pct, "canvas ", fmt.Sprintf(" %d/%d", canvas, canvases)))
	if tiles > 0 {
		p.lines.Add(p.bar.Generate(float64(tile)/float64(tiles), "tiles  ", fmt.Sprintf(" %d/%d", tile, tiles)))
	}
	p.lines.Flush()
}
