// Package sink provides the byte destinations a download can stream into.
package sink

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"transfer-lab/errors"
)

const diskBufferSize = 1 << 20

// DiskSink buffers a download into a file. Parts arrive in order from the
// engine, so a plain sequential writer is enough.
type DiskSink struct {
	log  *slog.Logger
	file *os.File
	buf  *bufio.Writer
}

func NewDiskSink(log *slog.Logger, path string) (*DiskSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", errors.ErrIO, path, err)
	}
	return &DiskSink{
		log:  log,
		file: file,
		buf:  bufio.NewWriterSize(file, diskBufferSize),
	}, nil
}

func (d *DiskSink) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Close flushes the buffer and closes the file.
func (d *DiskSink) Close() error {
	return stderrors.Join(d.buf.Flush(), d.file.Close())
}

// Abort closes and removes the partial file after a failed download.
func (d *DiskSink) Abort() {
	name := d.file.Name()
	if err := d.file.Close(); err != nil {
		d.log.Warn("failed to close partial download", "path", name, "err", err)
	}
	if err := os.Remove(name); err != nil {
		d.log.Warn("failed to remove partial download", "path", name, "err", err)
	}
}
