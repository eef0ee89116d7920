// Package wire implements the versioned binary envelope carried on the live
// connection and the upload endpoint. Every payload is framed as:
//
//	uint32 protocol version
//	uint32 content tag
//	XDR-encoded body
//
// A frame that fails to decode is a recoverable event: Decode returns a
// WrongFormat error and the caller answers with a GeneralError frame instead
// of dropping the connection.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/sptf/backend/internal/sptferr"
)

// ProtocolVersion is the current envelope version. Frames carrying any other
// version are rejected as WrongFormat.
const ProtocolVersion uint32 = 1

// Tag discriminates the envelope body. Values are part of the wire contract.
type Tag uint32

const (
	TagListDirectory    Tag = 1
	TagDirectoryListing Tag = 2
	TagGeneralError     Tag = 3
	TagFileUpload       Tag = 4
)

// FileType classifies a directory entry.
type FileType int32

const (
	FileTypeDirectory FileType = 0
	FileTypeNormal    FileType = 1
)

// ListDirectoryRequest asks for the listing of a user-visible directory and
// subscribes the connection to change notifications for it.
type ListDirectoryRequest struct {
	Path string
}

// DirectoryEntry describes one file inside a listed directory. Timestamps
// are seconds since the Unix epoch.
type DirectoryEntry struct {
	Path       string
	FileName   string
	FileType   FileType
	Size       uint64
	ModifiedTs uint64
	AccessedTs uint64
	CreatedTs  uint64
}

// DirectoryListingResponse carries a full directory listing. It is sent both
// as a direct reply and as an unsolicited push when the watched directory
// changes.
type DirectoryListingResponse struct {
	Path    string
	Entries []DirectoryEntry
}

// GeneralError reports a numeric error code to the client.
type GeneralError struct {
	Code uint64
}

// UploadedFile is one file inside an upload request.
type UploadedFile struct {
	FileName string
	Content  []byte
}

// FileUploadRequest carries files to be written under a user-visible
// directory. It travels as the body of the upload endpoint.
type FileUploadRequest struct {
	DirPath string
	Files   []UploadedFile
}

// Encode frames msg into a versioned envelope.
func Encode(msg any) ([]byte, error) {
	tag, err := tagOf(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, ProtocolVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(tag)); err != nil {
		return nil, err
	}
	if _, err := xdr.Marshal(&buf, msg); err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return buf.Bytes(), nil
}

func tagOf(msg any) (Tag, error) {
	switch msg.(type) {
	case *ListDirectoryRequest:
		return TagListDirectory, nil
	case *DirectoryListingResponse:
		return TagDirectoryListing, nil
	case *GeneralError:
		return TagGeneralError, nil
	case *FileUploadRequest:
		return TagFileUpload, nil
	default:
		return 0, fmt.Errorf("wire: unsupported message type %T", msg)
	}
}

// Decode parses an envelope and returns the typed body. Malformed bytes,
// a version mismatch or an unknown tag yield a WrongFormat error.
func Decode(data []byte) (any, error) {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, sptferr.Newf(sptferr.WrongFormat, "read version: %v", err)
	}
	if version != ProtocolVersion {
		return nil, sptferr.Newf(sptferr.WrongFormat, "protocol version %d, want %d", version, ProtocolVersion)
	}

	var tag uint32
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return nil, sptferr.Newf(sptferr.WrongFormat, "read tag: %v", err)
	}

	var msg any
	switch Tag(tag) {
	case TagListDirectory:
		msg = &ListDirectoryRequest{}
	case TagDirectoryListing:
		msg = &DirectoryListingResponse{}
	case TagGeneralError:
		msg = &GeneralError{}
	case TagFileUpload:
		msg = &FileUploadRequest{}
	default:
		return nil, sptferr.Newf(sptferr.WrongFormat, "unknown content tag %d", tag)
	}

	if _, err := xdr.Unmarshal(r, msg); err != nil {
		return nil, sptferr.Newf(sptferr.WrongFormat, "unmarshal body: %v", err)
	}
	return msg, nil
}

// DecodeFrom decodes a single envelope from r, for callers holding a stream
// rather than a framed message.
func DecodeFrom(r io.Reader) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, sptferr.Newf(sptferr.WrongFormat, "read envelope: %v", err)
	}
	return Decode(data)
}
