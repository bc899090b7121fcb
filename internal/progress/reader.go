package progress

import "io"

// Reader wraps an io.Reader and reports the integer download percentage
// every time it changes.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(percent int, written int64, total int64)

	totalRead   int64
	lastPercent int
}

// NewReader reports progress of r towards total bytes through cb. With an
// unknown total (<= 0) progress stays at 0 until the reader hits io.EOF.
func NewReader(r io.Reader, total int64, cb func(percent int, written int64, total int64)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.report(Percent(pr.totalRead, pr.Total))
	}

	if err == io.EOF && pr.Total <= 0 {
		pr.report(100)
	}

	return n, err
}

func (pr *Reader) report(percent int) {
	if percent == pr.lastPercent {
		return
	}

	pr.lastPercent = percent

	if pr.OnProgress != nil {
		pr.OnProgress(percent, pr.totalRead, pr.Total)
	}
}

// Percent converts written/total into a percentage clamped to [0,100].
func Percent(written, total int64) int {
	if total <= 0 || written <= 0 {
		return 0
	}

	if written >= total {
		return 100
	}

	return int(written * 100 / total)
}
