// Package progress reports byte counts while a stream is being read.
package progress

import "io"

// Reader wraps an io.Reader and invokes OnProgress every time at least Every bytes have been
// read since the previous report, and once more when the underlying reader hits EOF.
type Reader struct {
	r          io.Reader
	total      int64
	every      int64
	read       int64
	sinceLast  int64
	onProgress func(read, total int64)
}

func NewReader(r io.Reader, total, every int64, onProgress func(read, total int64)) *Reader {
	return &Reader{
		r:          r,
		total:      total,
		every:      every,
		onProgress: onProgress,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.sinceLast >= pr.every {
			pr.report()
		}
	}

	if err == io.EOF && pr.sinceLast > 0 {
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	pr.sinceLast = 0

	if pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total)
	}
}
