package domain

// Requests understood by a data-center node. Part payloads travel outside the
// JSON header (see infrastructure/tcpnet), hence the "-" tags.

// BindSession authenticates a connection with a key the client already holds.
// The node recomputes the key for (session, its own DC) and compares digests.
type BindSession struct {
	Session   string `json:"session" validate:"required,uuid"`
	KeyDigest string `json:"key_digest" validate:"required,len=64"`
}

type SessionBound struct {
	DC int `json:"dc"`
}

// ImportAuthorization redeems an exported ticket on a fresh connection and
// hands the derived key back so the client can cache it.
type ImportAuthorization struct {
	Ticket string `json:"ticket" validate:"required"`
}

type AuthorizationImported struct {
	Key AuthKey `json:"key"`
}

// ExportAuthorization is issued on the primary connection only.
type ExportAuthorization struct {
	TargetDC int `json:"target_dc" validate:"gte=0"`
}

type AuthorizationExported struct {
	Ticket AuthTicket `json:"ticket"`
}

type SaveFilePart struct {
	FileID int64  `json:"file_id" validate:"required"`
	Part   int32  `json:"part" validate:"gte=0"`
	Bytes  []byte `json:"-"`
}

type SaveBigFilePart struct {
	FileID     int64  `json:"file_id" validate:"required"`
	Part       int32  `json:"part" validate:"gte=0"`
	TotalParts int32  `json:"total_parts" validate:"gt=0"`
	Bytes      []byte `json:"-"`
}

type PartSaved struct {
	OK bool `json:"ok"`
}

type GetFilePart struct {
	Location ObjectLocation `json:"location"`
	Offset   int64          `json:"offset" validate:"gte=0"`
	Limit    int32          `json:"limit" validate:"gt=0"`
}

type FilePartData struct {
	Bytes []byte `json:"-"`
}

// SendMedia commits the staged parts of a reference into an immutable blob
// and posts it to a channel in one step.
type SendMedia struct {
	Channel  string        `json:"channel" validate:"required,max=128,excludesall=:"`
	Ref      FileReference `json:"ref"`
	Size     int64         `json:"size" validate:"gte=0"`
	Mimetype string        `json:"mimetype" validate:"required"`
	Caption  string        `json:"caption" validate:"max=2048"`
}

type MediaPosted struct {
	Document Document `json:"document"`
}

type ListDocuments struct {
	Channel string `json:"channel" validate:"required,max=128,excludesall=:"`
}

type SearchDocuments struct {
	Channel string `json:"channel" validate:"required,max=128,excludesall=:"`
	Query   string `json:"query" validate:"required"`
	Limit   int    `json:"limit" validate:"gt=0,lte=500"`
}

type DocumentList struct {
	Documents []Document `json:"documents"`
}

type DeleteDocuments struct {
	Channel    string  `json:"channel" validate:"required,max=128,excludesall=:"`
	MessageIDs []int64 `json:"message_ids" validate:"required,min=1"`
}

type DocumentsDeleted struct {
	Deleted int `json:"deleted"`
}

// RPCError is the wire form of a node-side failure.
type RPCError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ErrorCode int

const (
	CodeInvalidRequest ErrorCode = iota
	CodeUnknownSession
	CodeNotBound
	CodeBadTicket
	CodeUnknownObject
	CodeUnknownChannel
	CodeStagedPartMissing
	CodeChecksumMismatch
	CodeScreeningRejected
	CodeInternal
)
