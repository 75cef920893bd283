package tcpnet

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

func TestFrame_PartPayloadRidesOutsideTheHeader(t *testing.T) {
	req := require.New(t)

	part := domain.SaveFilePart{FileID: 42, Part: 3, Bytes: []byte{0x00, 0x01, 0xfe, 0xff}}

	var buf bytes.Buffer
	req.NoError(WriteMessage(&buf, part))

	// The JSON header must not contain the payload bytes.
	req.NotContains(buf.String(), "bytes")

	decoded, err := ReadMessage(&buf)
	req.NoError(err)
	req.Equal(part, decoded)
}

func TestFrame_RoundTrips(t *testing.T) {
	req := require.New(t)

	messages := []any{
		domain.BindSession{Session: "3f1f8a4e-9c1d-4a6b-8f2e-5f4f9f0c7d21", KeyDigest: "abc"},
		domain.SessionBound{DC: 2},
		domain.ImportAuthorization{Ticket: "signed"},
		domain.AuthorizationImported{Key: domain.AuthKey{1, 2, 3}},
		domain.SaveBigFilePart{FileID: 7, Part: 1, TotalParts: 9, Bytes: []byte("chunk")},
		domain.PartSaved{OK: true},
		domain.GetFilePart{Location: domain.ObjectLocation{DC: 1, ID: 5, AccessHash: 6}, Offset: 1024, Limit: 512},
		domain.FilePartData{Bytes: []byte("slice")},
		domain.MediaPosted{Document: domain.Document{MessageID: 4, Channel: "backups", Name: "a.7z"}},
		domain.DocumentsDeleted{Deleted: 2},
		domain.RPCError{Code: domain.CodeUnknownObject, Message: "object 5"},
	}

	var buf bytes.Buffer
	for _, msg := range messages {
		req.NoError(WriteMessage(&buf, msg))
	}
	for _, want := range messages {
		got, err := ReadMessage(&buf)
		req.NoError(err)
		req.Equal(want, got)
	}
}

func TestFrame_RejectsUnsupportedMessages(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteMessage(&buf, struct{ X int }{1}))
}

func TestFrame_RejectsOversizedAndCorruptFrames(t *testing.T) {
	req := require.New(t)

	var buf bytes.Buffer
	req.Error(WriteMessage(&buf, domain.FilePartData{Bytes: make([]byte, maxFrame)}))

	// A length word beyond the limit is refused before any allocation.
	var lead [9]byte
	binary.LittleEndian.PutUint32(lead[0:4], uint32(maxFrame+1))
	lead[4] = kindPartSaved
	_, err := ReadMessage(bytes.NewReader(lead[:]))
	req.Error(err)
	req.Contains(err.Error(), "out of bounds")

	// A frame that claims more header than frame is refused too.
	binary.LittleEndian.PutUint32(lead[0:4], 16)
	binary.LittleEndian.PutUint32(lead[5:9], 64)
	_, err = ReadMessage(bytes.NewReader(lead[:]))
	req.Error(err)

	// Truncated stream.
	var short bytes.Buffer
	req.NoError(WriteMessage(&short, domain.PartSaved{OK: true}))
	_, err = ReadMessage(bytes.NewReader(short.Bytes()[:short.Len()-2]))
	req.Error(err)
}

func TestCodes_RoundTripTheSentinelTaxonomy(t *testing.T) {
	req := require.New(t)

	wire := ErrorFrom(errors.ErrScreeningRejected)
	req.Equal(domain.CodeScreeningRejected, wire.Code)
	req.ErrorIs(AsError(wire), errors.ErrScreeningRejected)

	wire = ErrorFrom(errors.ErrConnClosed)
	req.Equal(domain.CodeInternal, wire.Code)
	req.Error(AsError(wire))
}
