package domain

// ObjectLocation addresses a committed object on the cluster. Downloads go to
// the data-center that owns the blob, which is not necessarily the session's
// home data-center.
type ObjectLocation struct {
	DC         int   `json:"dc" validate:"gte=0"`
	ID         int64 `json:"id" validate:"required"`
	AccessHash int64 `json:"access_hash"`
}

// FileReference is the artifact an upload leaves behind. It is the only input
// the attach step needs. Small objects carry an MD5 of the full content,
// large objects are checksum free.
type FileReference struct {
	FileID int64  `json:"file_id" validate:"required"`
	Parts  int32  `json:"parts" validate:"gte=0"`
	Name   string `json:"name" validate:"required,max=255"`
	IsBig  bool   `json:"is_big"`
	MD5Hex string `json:"md5,omitempty"`
}

type AttachmentKind string

const (
	KindDocument AttachmentKind = "document"
	KindVideo    AttachmentKind = "video"
	KindAudio    AttachmentKind = "audio"
	KindImage    AttachmentKind = "image"
	KindArchive  AttachmentKind = "archive"
)

const KB = 1024
const MB = KB * KB
