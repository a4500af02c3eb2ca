// Package media manages user images: one overwritable profile picture and an
// append-only photo collection, both served from public bucket URLs.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"time"

	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
	"github.com/disintegration/imaging"
)

var logg = logger.New()

const (
	profileName = "profile.jpg"
	profileSize = 400
	// maxPixels bounds the decoded canvas; headers are checked before decoding.
	maxPixels = 40_000_000
)

// Photo is a stored photo with its public URL.
type Photo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Service struct {
	storage       storage.Storage
	profileBucket string
	photoBucket   string
	now           func() time.Time
}

func New(files storage.Storage, profileBucket, photoBucket string) *Service {
	return &Service{
		storage:       files,
		profileBucket: profileBucket,
		photoBucket:   photoBucket,
		now:           time.Now,
	}
}

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("user is empty: %w", models.ErrValidation)
	}
	return nil
}

// bust appends a query that changes on every call so clients refetch.
func (s *Service) bust(url string) string {
	return url + "?v=" + strconv.FormatInt(s.now().UnixNano(), 10)
}

// UploadProfileImage replaces user's profile picture with file, scaled to fit
// 400x400 and stored as JPEG. It returns the new public URL.
func (s *Service) UploadProfileImage(ctx context.Context, user string, file storage.File) (string, error) {
	if err := requireUser(user); err != nil {
		return "", err
	}
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return "", fmt.Errorf("read profile image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %v: %w", err, models.ErrValidation)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return "", fmt.Errorf("image is %dx%d, over %d pixels: %w", cfg.Width, cfg.Height, maxPixels, models.ErrValidation)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %v: %w", err, models.ErrValidation)
	}
	img = imaging.Fit(img, profileSize, profileSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode profile image: %w", err)
	}

	key := storage.UserKey(user, profileName)
	opts := storage.UploadOptions{ContentType: "image/jpeg", Overwrite: true}
	if err := s.storage.Upload(ctx, s.profileBucket, key, &buf, opts); err != nil {
		logg.Error("media", "Profile image upload failed for "+user, err)
		return "", fmt.Errorf("upload profile image: %w", err)
	}

	logg.Info("media", "Profile image updated for "+user)
	return s.bust(s.storage.PublicURL(s.profileBucket, key)), nil
}

// ProfileImageURL returns the URL of user's profile picture, or nil if there is none.
func (s *Service) ProfileImageURL(ctx context.Context, user string) (*string, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	files, err := s.storage.List(ctx, s.profileBucket, user)
	if err != nil {
		logg.Error("media", "Failed to list profile images for "+user, err)
		return nil, fmt.Errorf("list profile images: %w", err)
	}
	f, ok := pickProfile(files)
	if !ok {
		return nil, nil
	}
	url := s.bust(s.storage.PublicURL(s.profileBucket, f.Key))
	return &url, nil
}

func pickProfile(files []models.StoredFile) (models.StoredFile, bool) {
	if len(files) == 0 {
		return models.StoredFile{}, false
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name, "profile.") {
			return f, true
		}
	}
	for _, f := range files {
		if strings.Contains(f.Name, "profile") {
			return f, true
		}
	}
	return files[0], true
}

// UploadPhoto adds file to user's photos under a timestamped name.
func (s *Service) UploadPhoto(ctx context.Context, user string, file storage.File) (Photo, error) {
	if err := requireUser(user); err != nil {
		return Photo{}, err
	}
	ext := storage.Ext(file.Name)
	name := fmt.Sprintf("%d.%s", s.now().UnixMilli(), ext)
	key := storage.UserKey(user, name)

	opts := storage.UploadOptions{ContentType: storage.ContentTypeOf(file)}
	if err := s.storage.Upload(ctx, s.photoBucket, key, file.Body, opts); err != nil {
		logg.Error("media", "Photo upload failed for "+user, err)
		return Photo{}, fmt.Errorf("upload photo: %w", err)
	}

	logg.Info("media", "Photo "+name+" uploaded for "+user)
	return Photo{Name: name, URL: s.storage.PublicURL(s.photoBucket, key), UpdatedAt: s.now().UTC()}, nil
}

// ListPhotos returns user's photos sorted by name, oldest upload first.
func (s *Service) ListPhotos(ctx context.Context, user string) ([]Photo, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	files, err := s.storage.List(ctx, s.photoBucket, user)
	if err != nil {
		logg.Error("media", "Failed to list photos for "+user, err)
		return nil, fmt.Errorf("list photos: %w", err)
	}
	photos := make([]Photo, 0, len(files))
	for _, f := range files {
		photos = append(photos, Photo{
			Name:      f.Name,
			URL:       s.storage.PublicURL(s.photoBucket, f.Key),
			Size:      f.Size,
			UpdatedAt: f.UpdatedAt,
		})
	}
	return photos, nil
}
