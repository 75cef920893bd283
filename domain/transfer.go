package domain

import "github.com/google/uuid"

type TransferID = uuid.UUID

type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// UploadCommand is the caller-facing request validated at the service
// boundary before any connection is opened.
type UploadCommand struct {
	Path           string `validate:"required,max=1024"`
	Channel        string `validate:"required,max=128"`
	MaxConnections int    `validate:"gte=1,lte=20"`
}

type DownloadCommand struct {
	Location       ObjectLocation
	Size           int64 `validate:"gte=0"`
	MaxConnections int   `validate:"gte=1,lte=20"`
}
