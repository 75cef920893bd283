package tcpnet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"transfer-lab/domain"
)

// Wire format, little endian:
//
//	[4] frame length (everything after this word)
//	[1] message kind
//	[4] header length
//	[.] JSON header
//	[.] raw payload
//
// Part bytes ride as raw payload behind the JSON header, so a 512 KiB part
// never goes through base64.

// maxFrame bounds what a peer can make us allocate.
const maxFrame = 4 * domain.MB

const (
	kindBindSession uint8 = iota + 1
	kindSessionBound
	kindImportAuthorization
	kindAuthorizationImported
	kindExportAuthorization
	kindAuthorizationExported
	kindSaveFilePart
	kindSaveBigFilePart
	kindPartSaved
	kindGetFilePart
	kindFilePartData
	kindSendMedia
	kindMediaPosted
	kindListDocuments
	kindSearchDocuments
	kindDocumentList
	kindDeleteDocuments
	kindDocumentsDeleted
	kindError
)

// WriteMessage frames and writes one message.
func WriteMessage(w io.Writer, msg any) error {
	kind, payload, err := classify(msg)
	if err != nil {
		return err
	}
	header, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	frameLen := 1 + 4 + len(header) + len(payload)
	if frameLen > maxFrame {
		return fmt.Errorf("frame of %d bytes exceeds the %d limit", frameLen, maxFrame)
	}

	buf := make([]byte, 9, 9+len(header))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(frameLen))
	buf[4] = kind
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(header)))
	buf = append(buf, header...)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads one framed message and returns the decoded value.
func ReadMessage(r io.Reader) (any, error) {
	var lead [9]byte
	if _, err := io.ReadFull(r, lead[:]); err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint32(lead[0:4])
	kind := lead[4]
	headerLen := binary.LittleEndian.Uint32(lead[5:9])

	if frameLen > maxFrame || frameLen < 5+headerLen {
		return nil, fmt.Errorf("frame length %d out of bounds", frameLen)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	var payload []byte
	if payloadLen := frameLen - 5 - headerLen; payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return decode(kind, header, payload)
}

// classify returns the wire kind of msg and the raw bytes carried outside
// the JSON header.
func classify(msg any) (uint8, []byte, error) {
	switch m := msg.(type) {
	case domain.BindSession:
		return kindBindSession, nil, nil
	case domain.SessionBound:
		return kindSessionBound, nil, nil
	case domain.ImportAuthorization:
		return kindImportAuthorization, nil, nil
	case domain.AuthorizationImported:
		return kindAuthorizationImported, nil, nil
	case domain.ExportAuthorization:
		return kindExportAuthorization, nil, nil
	case domain.AuthorizationExported:
		return kindAuthorizationExported, nil, nil
	case domain.SaveFilePart:
		return kindSaveFilePart, m.Bytes, nil
	case domain.SaveBigFilePart:
		return kindSaveBigFilePart, m.Bytes, nil
	case domain.PartSaved:
		return kindPartSaved, nil, nil
	case domain.GetFilePart:
		return kindGetFilePart, nil, nil
	case domain.FilePartData:
		return kindFilePartData, m.Bytes, nil
	case domain.SendMedia:
		return kindSendMedia, nil, nil
	case domain.MediaPosted:
		return kindMediaPosted, nil, nil
	case domain.ListDocuments:
		return kindListDocuments, nil, nil
	case domain.SearchDocuments:
		return kindSearchDocuments, nil, nil
	case domain.DocumentList:
		return kindDocumentList, nil, nil
	case domain.DeleteDocuments:
		return kindDeleteDocuments, nil, nil
	case domain.DocumentsDeleted:
		return kindDocumentsDeleted, nil, nil
	case domain.RPCError:
		return kindError, nil, nil
	default:
		return 0, nil, fmt.Errorf("unsupported message %T", msg)
	}
}

func decode(kind uint8, header, payload []byte) (any, error) {
	switch kind {
	case kindBindSession:
		var m domain.BindSession
		return m, json.Unmarshal(header, &m)
	case kindSessionBound:
		var m domain.SessionBound
		return m, json.Unmarshal(header, &m)
	case kindImportAuthorization:
		var m domain.ImportAuthorization
		return m, json.Unmarshal(header, &m)
	case kindAuthorizationImported:
		var m domain.AuthorizationImported
		return m, json.Unmarshal(header, &m)
	case kindExportAuthorization:
		var m domain.ExportAuthorization
		return m, json.Unmarshal(header, &m)
	case kindAuthorizationExported:
		var m domain.AuthorizationExported
		return m, json.Unmarshal(header, &m)
	case kindSaveFilePart:
		var m domain.SaveFilePart
		if err := json.Unmarshal(header, &m); err != nil {
			return nil, err
		}
		m.Bytes = payload
		return m, nil
	case kindSaveBigFilePart:
		var m domain.SaveBigFilePart
		if err := json.Unmarshal(header, &m); err != nil {
			return nil, err
		}
		m.Bytes = payload
		return m, nil
	case kindPartSaved:
		var m domain.PartSaved
		return m, json.Unmarshal(header, &m)
	case kindGetFilePart:
		var m domain.GetFilePart
		return m, json.Unmarshal(header, &m)
	case kindFilePartData:
		var m domain.FilePartData
		if err := json.Unmarshal(header, &m); err != nil {
			return nil, err
		}
		m.Bytes = payload
		return m, nil
	case kindSendMedia:
		var m domain.SendMedia
		return m, json.Unmarshal(header, &m)
	case kindMediaPosted:
		var m domain.MediaPosted
		return m, json.Unmarshal(header, &m)
	case kindListDocuments:
		var m domain.ListDocuments
		return m, json.Unmarshal(header, &m)
	case kindSearchDocuments:
		var m domain.SearchDocuments
		return m, json.Unmarshal(header, &m)
	case kindDocumentList:
		var m domain.DocumentList
		return m, json.Unmarshal(header, &m)
	case kindDeleteDocuments:
		var m domain.DeleteDocuments
		return m, json.Unmarshal(header, &m)
	case kindDocumentsDeleted:
		var m domain.DocumentsDeleted
		return m, json.Unmarshal(header, &m)
	case kindError:
		var m domain.RPCError
		return m, json.Unmarshal(header, &m)
	default:
		return nil, fmt.Errorf("unknown message kind %d", kind)
	}
}
