package moderation

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseSignatures reads a blocklist, one signature per line. Plain lines are
// taken as literal bytes; lines starting with "hex:" are decoded, which is
// how binary signatures are written down. Blank lines and lines starting
// with '#' are skipped, duplicates collapse to one entry.
func ParseSignatures(r io.Reader) ([][]byte, error) {
	unique := make(map[string]struct{})
	var signatures [][]byte

	// A scanner handles both \n and \r\n line endings.
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sig := []byte(line)
		if encoded, ok := strings.CutPrefix(line, "hex:"); ok {
			decoded, err := hex.DecodeString(strings.TrimSpace(encoded))
			if err != nil {
				return nil, fmt.Errorf("decode signature %q: %w", line, err)
			}
			sig = decoded
		}

		if _, seen := unique[string(sig)]; seen {
			continue
		}
		unique[string(sig)] = struct{}{}
		signatures = append(signatures, sig)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return signatures, nil
}

// LoadSignatures reads a blocklist file. An empty path means screening is
// not wanted and yields no signatures rather than an error.
func LoadSignatures(path string) ([][]byte, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signatures file: %w", err)
	}
	defer f.Close()

	signatures, err := ParseSignatures(f)
	if err != nil {
		return nil, fmt.Errorf("signatures file %q: %w", path, err)
	}
	return signatures, nil
}
