package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/sptf/backend/internal/sptferr"
)

func TestListDirectoryRoundTrip(t *testing.T) {
	data, err := Encode(&ListDirectoryRequest{Path: "/docs"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	req, ok := msg.(*ListDirectoryRequest)
	if !ok {
		t.Fatalf("Decode() returned %T, want *ListDirectoryRequest", msg)
	}
	if req.Path != "/docs" {
		t.Errorf("Path = %q, want %q", req.Path, "/docs")
	}
}

func TestDirectoryListingRoundTrip(t *testing.T) {
	resp := &DirectoryListingResponse{
		Path: "/docs",
		Entries: []DirectoryEntry{
			{
				Path:       "/docs/a.txt",
				FileName:   "a.txt",
				FileType:   FileTypeNormal,
				Size:       10,
				ModifiedTs: 1700000000,
				AccessedTs: 1700000001,
				CreatedTs:  1699999999,
			},
			{Path: "/docs/reports", FileName: "reports", FileType: FileTypeDirectory},
		},
	}

	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	got, ok := msg.(*DirectoryListingResponse)
	if !ok {
		t.Fatalf("Decode() returned %T, want *DirectoryListingResponse", msg)
	}
	if got.Path != resp.Path || len(got.Entries) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Entries[0] != resp.Entries[0] {
		t.Errorf("entry[0] = %+v, want %+v", got.Entries[0], resp.Entries[0])
	}
	if got.Entries[1].FileType != FileTypeDirectory {
		t.Errorf("entry[1].FileType = %v, want directory", got.Entries[1].FileType)
	}
}

func TestVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(999))
	binary.Write(&buf, binary.BigEndian, uint32(TagListDirectory))
	xdr.Marshal(&buf, &ListDirectoryRequest{Path: "/docs"})

	_, err := Decode(buf.Bytes())
	if sptferr.CodeOf(err) != sptferr.WrongFormat {
		t.Errorf("error code = %v, want WrongFormat", sptferr.CodeOf(err))
	}
}

func TestUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, ProtocolVersion)
	binary.Write(&buf, binary.BigEndian, uint32(42))

	_, err := Decode(buf.Bytes())
	if sptferr.CodeOf(err) != sptferr.WrongFormat {
		t.Errorf("error code = %v, want WrongFormat", sptferr.CodeOf(err))
	}
}

func TestTruncatedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial version", []byte{0x00, 0x00}},
		{"no body", []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if sptferr.CodeOf(err) != sptferr.WrongFormat {
				t.Errorf("error code = %v, want WrongFormat", sptferr.CodeOf(err))
			}
		})
	}
}

func TestFileUploadRoundTrip(t *testing.T) {
	req := &FileUploadRequest{
		DirPath: "/docs",
		Files: []UploadedFile{
			{FileName: "a.bin", Content: []byte{0x00, 0x01, 0x02}},
		},
	}

	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	got, ok := msg.(*FileUploadRequest)
	if !ok {
		t.Fatalf("Decode() returned %T, want *FileUploadRequest", msg)
	}
	if got.DirPath != "/docs" || len(got.Files) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.Files[0].FileName != "a.bin" || !bytes.Equal(got.Files[0].Content, req.Files[0].Content) {
		t.Errorf("file = %+v, want %+v", got.Files[0], req.Files[0])
	}
}

func TestGeneralErrorRoundTrip(t *testing.T) {
	data, err := Encode(&GeneralError{Code: 0x7})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	ge, ok := msg.(*GeneralError)
	if !ok {
		t.Fatalf("Decode() returned %T, want *GeneralError", msg)
	}
	if ge.Code != 0x7 {
		t.Errorf("Code = %#x, want 0x7", ge.Code)
	}
}
