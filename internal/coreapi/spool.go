package coreapi

import (
	"bytes"
	"io"
	"os"
)

// defaultSpoolThreshold is the number of bytes buffered in memory before an
// ingest spills to a temp file, mirroring blobular's api.py reliance on
// Python's tempfile.SpooledTemporaryFile to buffer PUT bodies while their
// digest is computed.
const defaultSpoolThreshold = 16 << 20

// spooledBuffer buffers written bytes in memory up to a threshold, then
// spills the remainder to a temp file. Reader returns a seekable view of
// everything written so far, letting the caller hash the body once and then
// rewind to hand it to a backend without holding the whole body in memory.
type spooledBuffer struct {
	threshold int64
	mem       *bytes.Buffer
	file      *os.File
}

func newSpooledBuffer(threshold int64) *spooledBuffer {
	if threshold <= 0 {
		threshold = defaultSpoolThreshold
	}
	return &spooledBuffer{threshold: threshold, mem: new(bytes.Buffer)}
}

func (s *spooledBuffer) Write(p []byte) (int, error) {
	if s.file != nil {
		return s.file.Write(p)
	}
	if int64(s.mem.Len()+len(p)) <= s.threshold {
		return s.mem.Write(p)
	}

	f, err := os.CreateTemp("", "cabs-ingest-*")
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(s.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return 0, err
	}
	s.file = f
	s.mem = nil
	return s.file.Write(p)
}

// Reader returns a seekable reader positioned at the start of everything
// written so far.
func (s *spooledBuffer) Reader() (io.ReadSeeker, error) {
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return s.file, nil
	}
	return bytes.NewReader(s.mem.Bytes()), nil
}

// Close releases the spill file, if any. Safe to call on a buffer that never
// spilled.
func (s *spooledBuffer) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}
