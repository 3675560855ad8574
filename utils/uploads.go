package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smtp-mailer/database"
)

const (
	// AttachmentsField is the multipart field carrying uploaded files.
	AttachmentsField = "attachments"
	// MaxAttachments is the most files accepted per request.
	MaxAttachments = database.MaxAttachments
	// MaxAttachmentSize is the largest accepted file, in bytes.
	MaxAttachmentSize = 10 << 20
	// MaxRequestSize bounds a whole /send request body: every attachment at
	// its limit plus room for the text fields and multipart framing.
	MaxRequestSize = MaxAttachments*MaxAttachmentSize + 1<<20
)

var (
	ErrTooManyFiles = errors.New("too many attachments")
	ErrFileTooLarge = errors.New("attachment too large")
)

// Uploads stores attachment files in a local directory. Stored files are
// never removed.
type Uploads struct {
	dir string
	now func() time.Time
}

// NewUploads returns an Uploads writing into dir, creating it if needed.
func NewUploads(dir string) (*Uploads, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve uploads directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &Uploads{dir: abs, now: time.Now}, nil
}

// Dir returns the absolute uploads directory.
func (u *Uploads) Dir() string {
	return u.dir
}

// Check enforces the per-request limits without touching the disk.
func (u *Uploads) Check(files []*multipart.FileHeader) error {
	if len(files) > MaxAttachments {
		return fmt.Errorf("%w: got %d, limit is %d", ErrTooManyFiles, len(files), MaxAttachments)
	}
	for _, fh := range files {
		if fh.Size > MaxAttachmentSize {
			return fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrFileTooLarge, fh.Filename, fh.Size, MaxAttachmentSize)
		}
	}
	return nil
}

// Save checks files and writes each one to the uploads directory as
// "<unix millis>-<original name>". Descriptors are returned in input order.
func (u *Uploads) Save(ctx context.Context, files []*multipart.FileHeader) ([]database.Attachment, error) {
	if err := u.Check(files); err != nil {
		return nil, err
	}

	attachments := make([]database.Attachment, 0, len(files))
	for _, fh := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, err := u.saveFile(fh)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, database.Attachment{Filename: fh.Filename, Path: path})
	}
	return attachments, nil
}

func (u *Uploads) saveFile(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, path, err := u.create(fh.Filename)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload %q: %w", fh.Filename, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload %q: %w", fh.Filename, err)
	}
	return path, nil
}

// create opens a new file named after the current time and the original
// name. A counter is inserted when that name is already taken.
func (u *Uploads) create(original string) (*os.File, string, error) {
	stamp := u.now().UnixMilli()
	name := SanitizeFilename(original)

	for i := 0; ; i++ {
		filename := fmt.Sprintf("%d-%s", stamp, name)
		if i > 0 {
			filename = fmt.Sprintf("%d-%d-%s", stamp, i, name)
		}
		path := filepath.Join(u.dir, filename)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create upload file: %w", err)
		}
		return f, path, nil
	}
}

// SanitizeFilename strips directory components and characters that are
// unsafe in a local filename.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == ':' {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return "file"
	}
	return name
}
