package e2e

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"transfer-lab/domain"
	"transfer-lab/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testTransferSuite struct {
	BaseSuite
}

func TestTransferSuite(t *testing.T) {
	suite.Run(t, &testTransferSuite{})
}

func (s *testTransferSuite) TestFullTransferFlow() {
	channel := "e2e-" + uuid.New().String()
	workDir := s.T().TempDir()

	// A few MiB of random bytes crosses several parts without slowing the run.
	content := make([]byte, 3*1024*1024+517)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	_, _ = rng.Read(content)
	sourcePath := filepath.Join(workDir, "scenario.bin")
	s.Require().NoError(os.WriteFile(sourcePath, content, 0o644))
	sourceSum := sha256.Sum256(content)

	var doc domain.Document

	s.Run("Step 1: Upload and attach", func() {
		s.Step(s.T(), "Uploading the source file", func(ctx context.Context) {
			ref, size, mime, err := s.Transfers().UploadObject(ctx, domain.UploadCommand{
				Path:           sourcePath,
				Channel:        channel,
				MaxConnections: s.Config.Conns,
			}, nil)
			s.Require().NoError(err, "Upload failed")
			s.Require().Equal(int64(len(content)), size)

			doc, err = s.Catalog().Attach(ctx, channel, ref, size, mime, domain.CaptionDetailed)
			s.Require().NoError(err, "Attach failed")
			s.Require().NotZero(doc.MessageID)
		})
	})

	s.Run("Step 2: Listed in the catalog", func() {
		s.Step(s.T(), "Listing the channel", func(ctx context.Context) {
			docs, err := s.Catalog().Documents(ctx, channel)
			s.Require().NoError(err)
			s.Require().Len(docs, 1)
			s.Require().Equal("scenario.bin", docs[0].Name)
			s.Require().Equal(int64(len(content)), docs[0].Size)
		})
	})

	s.Run("Step 3: Findable through search", func() {
		s.Eventually(func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			hits, err := s.Catalog().SearchArchives(ctx, channel, "scenario", 10)
			return err == nil && len(hits) == 1
		}, 20*time.Second, time.Second, "Document never became searchable")
	})

	s.Run("Step 4: Download round-trips the content", func() {
		s.Step(s.T(), "Downloading into a disk sink", func(ctx context.Context) {
			destPath := filepath.Join(workDir, "scenario.out")
			disk, err := sink.NewDiskSink(s.log, destPath)
			s.Require().NoError(err)

			err = s.Transfers().DownloadObject(ctx, domain.DownloadCommand{
				Location:       doc.Location,
				Size:           doc.Size,
				MaxConnections: s.Config.Conns,
			}, disk, nil)
			s.Require().NoError(err, "Download failed")
			s.Require().NoError(disk.Close())

			downloaded, err := os.ReadFile(destPath)
			s.Require().NoError(err)
			s.Require().Equal(len(content), len(downloaded), "Size mismatch after round trip")
			s.Require().Equal(sourceSum, sha256.Sum256(downloaded), "Checksum mismatch after round trip")
		})
	})

	s.Run("Step 5: Delete cleans the channel", func() {
		s.Step(s.T(), "Deleting by message ID", func(ctx context.Context) {
			n, err := s.Catalog().DeleteDocuments(ctx, channel, []int64{doc.MessageID})
			s.Require().NoError(err)
			s.Require().Equal(1, n)

			docs, err := s.Catalog().Documents(ctx, channel)
			s.Require().NoError(err)
			s.Require().Empty(docs)
		})
	})
}

func (s *testTransferSuite) TestSplitArchiveFlow() {
	channel := "e2e-" + uuid.New().String()
	workDir := s.T().TempDir()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const parts = 3

	s.Run("Step 1: Post a split series", func() {
		s.Step(s.T(), "Uploading the archive parts", func(ctx context.Context) {
			for i := 1; i <= parts; i++ {
				content := make([]byte, 512*1024+i)
				_, _ = rng.Read(content)
				path := filepath.Join(workDir, fmt.Sprintf("backup.7z.%03d", i))
				s.Require().NoError(os.WriteFile(path, content, 0o644))

				ref, size, mime, err := s.Transfers().UploadObject(ctx, domain.UploadCommand{
					Path:           path,
					Channel:        channel,
					MaxConnections: s.Config.Conns,
				}, nil)
				s.Require().NoError(err)

				_, err = s.Catalog().Attach(ctx, channel, ref, size, mime, domain.CaptionMinimal)
				s.Require().NoError(err)
			}
		})
	})

	s.Run("Step 2: Parts group into one archive", func() {
		s.Step(s.T(), "Listing the archives", func(ctx context.Context) {
			archives, err := s.Catalog().Archives(ctx, channel)
			s.Require().NoError(err)
			s.Require().Len(archives, 1)
			s.Require().Equal("backup", archives[0].Name)
			s.Require().Equal(parts, archives[0].Parts())
		})
	})

	s.Run("Step 3: Deleting the archive removes every part", func() {
		s.Step(s.T(), "Deleting by archive name", func(ctx context.Context) {
			n, err := s.Catalog().DeleteArchive(ctx, channel, "backup")
			s.Require().NoError(err)
			s.Require().Equal(parts, n)

			docs, err := s.Catalog().Documents(ctx, channel)
			s.Require().NoError(err)
			s.Require().Empty(docs)
		})
	})
}
