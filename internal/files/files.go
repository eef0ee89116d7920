// Package files confines user-visible paths to the served root and performs
// the directory operations behind the protocol: listing, download bundling
// and upload writes.
package files

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sptf/backend/internal/sptferr"
	"github.com/sptf/backend/internal/wire"
)

// RealPath maps a user-visible path to a path under root. The user path is
// cleaned first so ".." segments cannot climb out of the jail; a leading
// separator is stripped rather than treated as an absolute escape.
func RealPath(root, userPath string) string {
	cleaned := path.Clean("/" + filepath.ToSlash(userPath))
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
}

// UserPath is the inverse of RealPath. It succeeds only when realPath
// actually lies under root.
func UserPath(root, realPath string) (string, bool) {
	rel, err := filepath.Rel(root, realPath)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

// ListDir lists the directory at the given user-visible path. Entries that
// are neither directories nor regular files, and entries whose metadata
// cannot be read, are skipped rather than failing the listing.
func ListDir(root, userPath string) (*wire.DirectoryListingResponse, error) {
	realPath := RealPath(root, userPath)

	dirEntries, err := os.ReadDir(realPath)
	if err != nil {
		log.Printf("files: read dir %s: %v", realPath, err)
		return nil, sptferr.Newf(sptferr.PermissionDenied, "read dir %s", realPath)
	}

	resp := &wire.DirectoryListingResponse{Path: cleanUserPath(userPath)}
	for _, dirEntry := range dirEntries {
		var fileType wire.FileType
		switch {
		case dirEntry.IsDir():
			fileType = wire.FileTypeDirectory
		case dirEntry.Type().IsRegular():
			fileType = wire.FileTypeNormal
		default:
			log.Printf("files: %s is neither directory nor regular file, skipping", dirEntry.Name())
			continue
		}

		info, err := dirEntry.Info()
		if err != nil {
			log.Printf("files: stat %s: %v", dirEntry.Name(), err)
			continue
		}

		entryUserPath, ok := UserPath(root, filepath.Join(realPath, dirEntry.Name()))
		if !ok {
			log.Printf("files: cannot map %s back to a user path", dirEntry.Name())
			continue
		}

		accessed, created := statTimes(info)
		resp.Entries = append(resp.Entries, wire.DirectoryEntry{
			Path:       entryUserPath,
			FileName:   dirEntry.Name(),
			FileType:   fileType,
			Size:       uint64(info.Size()),
			ModifiedTs: uint64(info.ModTime().Unix()),
			AccessedTs: accessed,
			CreatedTs:  created,
		})
	}

	return resp, nil
}

func cleanUserPath(userPath string) string {
	return path.Clean("/" + filepath.ToSlash(userPath))
}

// Bundle writes a gzipped tar archive containing the named user-visible
// files to w. Paths that cannot be opened fail the bundle with
// PermissionDenied, matching the single-file download behavior.
func Bundle(root string, userPaths []string, w io.Writer) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	for _, userPath := range userPaths {
		if err := appendFile(tw, root, userPath); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		log.Printf("files: finish tar: %v", err)
		return sptferr.New(sptferr.Unexpected, "finish tar")
	}
	if err := gw.Close(); err != nil {
		log.Printf("files: finish gzip: %v", err)
		return sptferr.New(sptferr.Unexpected, "finish gzip")
	}
	return nil
}

func appendFile(tw *tar.Writer, root, userPath string) error {
	realPath := RealPath(root, userPath)
	f, err := os.Open(realPath)
	if err != nil {
		log.Printf("files: open %s: %v", realPath, err)
		return sptferr.Newf(sptferr.PermissionDenied, "open %s", realPath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Printf("files: stat %s: %v", realPath, err)
		return sptferr.Newf(sptferr.PermissionDenied, "stat %s", realPath)
	}

	hdr := &tar.Header{
		Name:    path.Join("target", filepath.Base(realPath)),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		log.Printf("files: write tar header for %s: %v", realPath, err)
		return sptferr.New(sptferr.Unexpected, "write tar header")
	}
	if _, err := io.Copy(tw, f); err != nil {
		log.Printf("files: archive %s: %v", realPath, err)
		return sptferr.New(sptferr.Unexpected, "archive file")
	}
	return nil
}

// SaveUploads writes every file of the request under its directory. A file
// that fails to write is reported but does not stop the remaining writes.
func SaveUploads(root string, req *wire.FileUploadRequest) error {
	var failed error
	for _, file := range req.Files {
		userPath := path.Join(req.DirPath, file.FileName)
		realPath := RealPath(root, userPath)
		if err := os.WriteFile(realPath, file.Content, 0o644); err != nil {
			log.Printf("files: write %s: %v", realPath, err)
			failed = sptferr.Newf(sptferr.PermissionDenied, "write %s", realPath)
		}
	}
	return failed
}
