package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image/color"
	"strings"
	"testing"
	"time"

	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	profileBucket = "profile-images"
	photoBucket   = "user-images"
)

func newTestService(now time.Time) (*Service, *storage.MockStorage) {
	files := storage.NewMock()
	svc := New(files, profileBucket, photoBucket)
	svc.now = func() time.Time { return now }
	return svc, files
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, A: 255}), imaging.PNG))
	return buf.Bytes()
}

// pngHeader returns the signature and IHDR chunk of a w x h grayscale PNG.
// It is enough for image.DecodeConfig, and the pixel data never exists.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 0, 0, 0, 0)
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestUploadProfileImage_FitsAndReencodes(t *testing.T) {
	now := time.Unix(0, 1700000000000000001)
	svc, files := newTestService(now)

	url, err := svc.UploadProfileImage(context.Background(), "alice", storage.File{Name: "me.png", Body: bytes.NewReader(pngBytes(t, 800, 600))})
	require.NoError(t, err)
	assert.Equal(t, files.PublicURL(profileBucket, "alice/profile.jpg")+"?v=1700000000000000001", url)

	obj, ok := files.Object(profileBucket, "alice/profile.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	img, err := imaging.Decode(bytes.NewReader(obj.Data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestUploadProfileImage_Overwrites(t *testing.T) {
	svc, files := newTestService(time.Now())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.UploadProfileImage(ctx, "alice", storage.File{Name: "me.png", Body: bytes.NewReader(pngBytes(t, 10, 10))})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, files.Count(profileBucket))
}

func TestUploadProfileImage_RejectsNonImage(t *testing.T) {
	svc, files := newTestService(time.Now())
	_, err := svc.UploadProfileImage(context.Background(), "alice", storage.File{Name: "x.png", Body: strings.NewReader("not an image")})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 0, files.Count(profileBucket))
}

func TestUploadProfileImage_RejectsHugeCanvas(t *testing.T) {
	svc, files := newTestService(time.Now())
	_, err := svc.UploadProfileImage(context.Background(), "alice", storage.File{Name: "big.png", Body: bytes.NewReader(pngHeader(12000, 12000))})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "12000x12000")
	assert.Equal(t, 0, files.Count(profileBucket))
}

func TestPickProfile(t *testing.T) {
	_, ok := pickProfile(nil)
	assert.False(t, ok)

	f, _ := pickProfile([]models.StoredFile{{Name: "a.png"}, {Name: "my-profile.png"}, {Name: "profile.jpg"}})
	assert.Equal(t, "profile.jpg", f.Name)

	f, _ = pickProfile([]models.StoredFile{{Name: "a.png"}, {Name: "my-profile.png"}})
	assert.Equal(t, "my-profile.png", f.Name)

	f, _ = pickProfile([]models.StoredFile{{Name: "a.png"}, {Name: "b.png"}})
	assert.Equal(t, "a.png", f.Name)
}

func TestProfileImageURL(t *testing.T) {
	svc, files := newTestService(time.Unix(0, 42))
	ctx := context.Background()

	url, err := svc.ProfileImageURL(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, url)

	require.NoError(t, files.Upload(ctx, profileBucket, "alice/avatar.gif", strings.NewReader("g"), storage.UploadOptions{}))
	url, err = svc.ProfileImageURL(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, url)
	assert.Equal(t, files.PublicURL(profileBucket, "alice/avatar.gif")+"?v=42", *url)

	files.ShouldFailList = true
	_, err = svc.ProfileImageURL(ctx, "alice")
	assert.Error(t, err)
}

func TestPhotos_UploadAndList(t *testing.T) {
	now := time.UnixMilli(1700000000500)
	svc, files := newTestService(now)
	ctx := context.Background()

	photo, err := svc.UploadPhoto(ctx, "bob", storage.File{Name: "Beach.JPG", Body: strings.NewReader("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "1700000000500.jpg", photo.Name)

	obj, ok := files.Object(photoBucket, "bob/1700000000500.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	// same millisecond: never overwrites
	_, err = svc.UploadPhoto(ctx, "bob", storage.File{Name: "again.jpg", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, models.ErrExists)

	photos, err := svc.ListPhotos(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, photo.URL, photos[0].URL)
	assert.Equal(t, int64(4), photos[0].Size)

	empty, err := svc.ListPhotos(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
