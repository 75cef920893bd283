package domain

import "time"

// Document is one posted media message on a channel.
type Document struct {
	MessageID int64          `json:"message_id"`
	Channel   string         `json:"channel"`
	Name      string         `json:"name"`
	Caption   string         `json:"caption,omitempty"`
	Mimetype  string         `json:"mimetype"`
	Kind      AttachmentKind `json:"kind"`
	Size      int64          `json:"size"`
	Date      time.Time      `json:"date"`
	Location  ObjectLocation `json:"location"`
}

// Archive groups the documents of one logical backup: a bare "name.7z" or a
// split "name.7z.001 … name.7z.NNN" series posted to the same channel.
type Archive struct {
	Name      string
	TotalSize int64
	Date      time.Time
	Documents []Document
}

func (a Archive) Parts() int {
	return len(a.Documents)
}

// CaptionMode controls how much metadata the attach step puts in the message
// caption.
type CaptionMode string

const (
	CaptionNone     CaptionMode = "none"
	CaptionMinimal  CaptionMode = "minimal"
	CaptionDetailed CaptionMode = "detailed"
)
