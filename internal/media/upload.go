package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// Multipart field names carrying profile images.
const (
	FieldAvatar     = "avatar"
	FieldCoverImage = "coverImage"
)

var (
	// ErrNoFile is returned when an expected file part is missing or empty.
	ErrNoFile = errors.New("no file uploaded")
	// ErrFileTooLarge is returned when a file exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")
)

// LocalFile is an uploaded file staged on local disk awaiting transfer to the media host.
type LocalFile struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Remove deletes the staged file. Missing files are ignored.
func (f LocalFile) Remove() {
	if f.Path == "" {
		return
	}
	_ = os.Remove(f.Path)
}

// Uploads is the parsed result of a registration form's file parts.
type Uploads struct {
	AvatarPresent bool
	AvatarRef     LocalFile
	CoverPresent  bool
	CoverRef      LocalFile
}

// Cleanup removes any staged files that were not consumed by an upload.
func (u Uploads) Cleanup() {
	if u.AvatarPresent {
		u.AvatarRef.Remove()
	}
	if u.CoverPresent {
		u.CoverRef.Remove()
	}
}

// Stager writes multipart file parts into a temp directory.
type Stager struct {
	dir      string
	maxBytes int64
}

// NewStager returns a Stager writing to dir and rejecting files larger than maxBytes.
// A non-positive maxBytes disables the limit.
func NewStager(dir string, maxBytes int64) *Stager {
	return &Stager{dir: dir, maxBytes: maxBytes}
}

// ParseUploads stages the avatar and optional cover image parts of form.
// Missing parts are reported through the Present flags, not as errors.
func (s *Stager) ParseUploads(form *multipart.Form) (Uploads, error) {
	var uploads Uploads
	if form == nil {
		return uploads, nil
	}

	if header := firstFile(form, FieldAvatar); header != nil {
		file, err := s.Save(header)
		if err != nil {
			return Uploads{}, fmt.Errorf("stage %s: %w", FieldAvatar, err)
		}
		uploads.AvatarPresent = true
		uploads.AvatarRef = file
	}

	if header := firstFile(form, FieldCoverImage); header != nil {
		file, err := s.Save(header)
		if err != nil {
			uploads.Cleanup()
			return Uploads{}, fmt.Errorf("stage %s: %w", FieldCoverImage, err)
		}
		uploads.CoverPresent = true
		uploads.CoverRef = file
	}

	return uploads, nil
}

// Save copies a single file part to a new temp file.
func (s *Stager) Save(header *multipart.FileHeader) (LocalFile, error) {
	if header == nil || header.Size == 0 {
		return LocalFile{}, ErrNoFile
	}
	if s.maxBytes > 0 && header.Size > s.maxBytes {
		return LocalFile{}, ErrFileTooLarge
	}

	src, err := header.Open()
	if err != nil {
		return LocalFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return LocalFile{}, fmt.Errorf("create temp dir: %w", err)
	}

	dst, err := os.CreateTemp(s.dir, "upload-*"+extension(header.Filename))
	if err != nil {
		return LocalFile{}, fmt.Errorf("create temp file: %w", err)
	}

	var reader io.Reader = src
	if s.maxBytes > 0 {
		reader = io.LimitReader(src, s.maxBytes+1)
	}

	written, copyErr := io.Copy(dst, reader)
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dst.Name())
		return LocalFile{}, fmt.Errorf("write temp file: %w", copyErr)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(dst.Name())
		return LocalFile{}, ErrFileTooLarge
	}

	return LocalFile{
		Path:        dst.Name(),
		Filename:    header.Filename,
		ContentType: detectContentType(header),
		Size:        written,
	}, nil
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	files := form.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

func detectContentType(header *multipart.FileHeader) string {
	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}
