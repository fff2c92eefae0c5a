package ascii

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestIsWriterTerminal(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}
	if IsWriterTerminal(buf) {
		t.Errorf("buffer should not be a terminal")
	}
	if termWidth(buf) != 0 {
		t.Errorf("buffer should not have a width")
	}
}

func TestLines(t *testing.T) {
	t.Parallel()
	tt := []struct {
		name   string
		width  int
		first  string
		second string
		expect string
	}{
		{
			name:   "no width",
			first:  "hello\nworld this is a long line\n",
			second: "foo\n",
			expect: "\033[2F\033[0Jfoo\n",
		},
		{
			name:   "wrapped",
			width:  10,
			first:  "hello\nworld this is a long line\n",
			second: "foo\n",
			expect: "\033[4F\033[0Jfoo\n",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewLines(buf)
			l.width = tc.width
			l.Add([]byte(tc.first))
			l.Flush()
			out, _ := io.ReadAll(buf)
			if string(out) != "\033[0J"+tc.first {
				t.Errorf("first flush, received %q", out)
			}
			l.Add([]byte(tc.second))
			l.Flush()
			out, _ = io.ReadAll(buf)
			if string(out) != tc.expect {
				t.Errorf("second flush, expected %q, received %q", tc.expect, out)
			}
			// delete clears the block on the next flush
			l.Add([]byte("bar\n"))
			l.Del()
			l.Flush()
			out, _ = io.ReadAll(buf)
			if string(out) != "\033[1F\033[0J" {
				t.Errorf("delete flush, received %q", out)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	t.Parallel()
	p := NewProgressBar(&bytes.Buffer{})
	p.Width = 0
	tt := []struct {
		pct    float64
		expect string
	}{
		{pct: -1, expect: "a [>         ] b\n"},
		{pct: 0.5, expect: "a [=====>    ] b\n"},
		{pct: 2, expect: "a [==========] b\n"},
	}
	for _, tc := range tt {
		if result := string(p.Generate(tc.pct, "a ", " b")); result != tc.expect {
			t.Errorf("pct %f, expected %q, received %q", tc.pct, tc.expect, result)
		}
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}
	p := NewProgress(buf)
	cur := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return cur }
	p.Update(1, 2, 1, 4)
	first := buf.String()
	if !bytes.Contains([]byte(first), []byte("canvas [")) || !bytes.Contains([]byte(first), []byte(" 1/4\n")) {
		t.Errorf("unexpected first draw %q", first)
	}
	// within the interval nothing is drawn
	p.Update(1, 2, 2, 4)
	if buf.String() != first {
		t.Errorf("redraw within interval: %q", buf.String())
	}
	// the last tile always draws
	p.Update(1, 2, 4, 4)
	if !bytes.Contains(buf.Bytes(), []byte(" 4/4\n")) {
		t.Errorf("last tile not drawn: %q", buf.String())
	}
	cur = cur.Add(time.Second)
	p.Update(2, 2, 0, 0)
	p.Finish(2)
	if !bytes.HasSuffix(buf.Bytes(), []byte(" 2/2\n")) {
		t.Errorf("finish not drawn: %q", buf.String())
	}
}
