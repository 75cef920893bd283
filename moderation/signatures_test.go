package moderation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSignatures(t *testing.T) {
	t.Run("Mixed literal and hex lines", func(t *testing.T) {
		req := require.New(t)
		blocklist := strings.Join([]string{
			"# transfer blocklist",
			"",
			"MARKER-EICAR-STYLE-TEST-SIGNATURE",
			"hex:4d5a900003000000",
			"   ",
			"MARKER-EICAR-STYLE-TEST-SIGNATURE",
		}, "\r\n")

		signatures, err := ParseSignatures(strings.NewReader(blocklist))
		req.NoError(err)
		req.Len(signatures, 2)
		req.Equal([]byte("MARKER-EICAR-STYLE-TEST-SIGNATURE"), signatures[0])
		req.Equal([]byte{0x4d, 0x5a, 0x90, 0x00, 0x03, 0x00, 0x00, 0x00}, signatures[1])
	})

	t.Run("Broken hex line is an error", func(t *testing.T) {
		req := require.New(t)
		_, err := ParseSignatures(strings.NewReader("hex:zzzz"))
		req.Error(err)
	})
}

func TestLoadSignatures(t *testing.T) {
	t.Run("Empty path disables screening", func(t *testing.T) {
		req := require.New(t)
		signatures, err := LoadSignatures("")
		req.NoError(err)
		req.Empty(signatures)
	})

	t.Run("File feeds the screener", func(t *testing.T) {
		req := require.New(t)
		path := filepath.Join(t.TempDir(), "blocklist.txt")
		req.NoError(os.WriteFile(path, []byte("FORBIDDEN-CONTENT\nhex:deadbeef\n"), 0o600))

		signatures, err := LoadSignatures(path)
		req.NoError(err)
		req.Len(signatures, 2)

		screener, err := NewScreener(signatures)
		req.NoError(err)
		req.True(screener.Match([]byte("prefix FORBIDDEN-CONTENT suffix")))
		req.True(screener.Match([]byte{0x00, 0xde, 0xad, 0xbe, 0xef, 0x00}))
		req.False(screener.Match([]byte("harmless payload")))
	})
}
