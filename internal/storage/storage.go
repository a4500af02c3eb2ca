// Package storage is the object side of the backend: buckets of files
// addressed as <bucket>/<user>/<filename>, readable through public URLs.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
)

var logg = logger.New()

// UploadOptions controls a single upload.
type UploadOptions struct {
	ContentType string
	// Overwrite replaces an existing object. Without it an existing key fails with models.ErrExists.
	Overwrite bool
}

// Storage uploads, lists and resolves stored files.
type Storage interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, opts UploadOptions) error
	// List returns the direct children of prefix (a "folder" listing), sorted by name.
	List(ctx context.Context, bucket, prefix string) ([]models.StoredFile, error)
	// PublicURL resolves a key to an unauthenticated URL. It never fails.
	PublicURL(bucket, key string) string
}

// UserKey joins a per-user path under a bucket.
func UserKey(user string, parts ...string) string {
	return path.Join(append([]string{user}, parts...)...)
}

// Ext returns the extension of a filename without the dot, lower-cased, or "bin".
func Ext(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}

// ContentTypeFor guesses a content type for common image extensions.
func ContentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// File is an uploaded file as received from a client.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// ContentTypeOf returns the client's content type for f, or a guess from its
// extension when the client sent none or a generic one.
func ContentTypeOf(f File) string {
	if f.ContentType != "" && f.ContentType != "application/octet-stream" {
		return f.ContentType
	}
	return ContentTypeFor(Ext(f.Name))
}
