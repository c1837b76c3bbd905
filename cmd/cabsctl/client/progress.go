package client

import "io"

// ProgressEvent reports cumulative progress during Put/Get, mirroring the
// teacher's root-level ProgressEvent/ProgressCallback pair.
type ProgressEvent struct {
	Operation        string
	BytesTransferred int64
	TotalBytes       int64
}

// ProgressCallback is invoked repeatedly during Put/Get when the caller
// supplies one. Implementations should be cheap: it is called on every
// chunk read or written.
type ProgressCallback func(event ProgressEvent)

// progressReader wraps an io.Reader, reporting cumulative bytes read to
// callback after every Read, grounded on the teacher's internal/progress.Reader.
type progressReader struct {
	reader    io.Reader
	operation string
	total     int64
	read      int64
	callback  ProgressCallback
}

func newProgressReader(r io.Reader, operation string, total int64, callback ProgressCallback) *progressReader {
	return &progressReader{reader: r, operation: operation, total: total, callback: callback}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.callback != nil {
			r.callback(ProgressEvent{Operation: r.operation, BytesTransferred: r.read, TotalBytes: r.total})
		}
	}
	return n, err
}
