package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Sizes picked to cross the interesting thresholds: the small/big object
// cutoff and the padding cases around part boundaries.
var blobs = []struct {
	name string
	size int64
}{
	{"empty.bin", 0},
	{"tiny.bin", 777},
	{"small.bin", 256 * 1024},
	{"medium.bin", 5*1024*1024 + 12345},
	{"large.bin", 24 * 1024 * 1024},
}

func main() {
	outputDir := flag.String("out", "./test_data", "destination directory")
	seed := flag.Int64("seed", 42, "generator seed, same seed same bytes")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		panic(fmt.Sprintf("cannot create %s: %v", *outputDir, err))
	}

	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("Generating transfer test files...")
	for _, blob := range blobs {
		path := filepath.Join(*outputDir, blob.name)
		if err := genBlob(rng, path, blob.size); err != nil {
			fmt.Printf("Error on %s: %v\n", blob.name, err)
			continue
		}
		fmt.Printf("Blob generated: %s (%s)\n", path, humanize.Bytes(uint64(blob.size)))
	}

	// A split archive series for the catalog grouping and deletion flows.
	for part := 1; part <= 3; part++ {
		name := fmt.Sprintf("backup.7z.%03d", part)
		path := filepath.Join(*outputDir, name)
		if err := genBlob(rng, path, 2*1024*1024); err != nil {
			fmt.Printf("Error on %s: %v\n", name, err)
			continue
		}
		fmt.Printf("Archive part generated: %s\n", path)
	}

	fmt.Println("\nReady. Point the tester at", *outputDir)
}

// genBlob writes size random bytes. Random content keeps accidental
// deduplication or compression from hiding transfer bugs.
func genBlob(rng *rand.Rand, path string, size int64) error {
	data := make([]byte, size)
	_, _ = rng.Read(data)
	return os.WriteFile(path, data, 0o644)
}
