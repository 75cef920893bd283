package sink

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiskSink_WritesThroughTheBuffer(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "download.7z")

	sink, err := NewDiskSink(testLogger(), path)
	req.NoError(err)

	content := make([]byte, 3*diskBufferSize/2)
	for i := range content {
		content[i] = byte(i)
	}
	for off := 0; off < len(content); off += 64 * 1024 {
		end := min(off+64*1024, len(content))
		n, err := sink.Write(content[off:end])
		req.NoError(err)
		req.Equal(end-off, n)
	}
	req.NoError(sink.Close())

	got, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal(content, got)
}

func TestDiskSink_AbortRemovesThePartialFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "partial.7z")

	sink, err := NewDiskSink(testLogger(), path)
	req.NoError(err)
	_, err = sink.Write([]byte("half a download"))
	req.NoError(err)

	sink.Abort()

	_, err = os.Stat(path)
	req.True(os.IsNotExist(err))
}
