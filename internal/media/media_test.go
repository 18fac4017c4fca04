package media

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filePart struct {
	field, name, contentType, body string
}

func buildForm(t *testing.T, parts ...filePart) *multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		header.Set("Content-Type", p.contentType)
		w, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm
}

func TestParseUploadsStagesBothImages(t *testing.T) {
	stager := NewStager(t.TempDir(), 1024)
	form := buildForm(t,
		filePart{FieldAvatar, "me.PNG", "image/png", "avatar-bytes"},
		filePart{FieldCoverImage, "cover.jpg", "image/jpeg", "cover-bytes"},
	)

	uploads, err := stager.ParseUploads(form)
	require.NoError(t, err)

	require.True(t, uploads.AvatarPresent)
	require.True(t, uploads.CoverPresent)
	assert.Equal(t, "me.PNG", uploads.AvatarRef.Filename)
	assert.Equal(t, "image/png", uploads.AvatarRef.ContentType)
	assert.True(t, strings.HasSuffix(uploads.AvatarRef.Path, ".png"))
	assert.Equal(t, int64(len("avatar-bytes")), uploads.AvatarRef.Size)

	content, err := os.ReadFile(uploads.CoverRef.Path)
	require.NoError(t, err)
	assert.Equal(t, "cover-bytes", string(content))

	uploads.Cleanup()
	assert.NoFileExists(t, uploads.AvatarRef.Path)
	assert.NoFileExists(t, uploads.CoverRef.Path)
}

func TestParseUploadsReportsMissingParts(t *testing.T) {
	stager := NewStager(t.TempDir(), 1024)
	form := buildForm(t, filePart{FieldCoverImage, "cover.jpg", "image/jpeg", "cover"})

	uploads, err := stager.ParseUploads(form)
	require.NoError(t, err)
	assert.False(t, uploads.AvatarPresent)
	assert.True(t, uploads.CoverPresent)
	uploads.Cleanup()
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	stager := NewStager(t.TempDir(), 4)
	form := buildForm(t, filePart{FieldAvatar, "big.png", "image/png", "too-many-bytes"})

	_, err := stager.Save(form.File[FieldAvatar][0])
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestSaveRejectsEmptyFile(t *testing.T) {
	stager := NewStager(t.TempDir(), 0)
	form := buildForm(t, filePart{FieldAvatar, "empty.png", "image/png", ""})

	_, err := stager.Save(form.File[FieldAvatar][0])
	assert.ErrorIs(t, err, ErrNoFile)
}

type fakeObjectStore struct {
	err     error
	calls   int
	bucket  string
	object  string
	options minio.PutObjectOptions
}

func (f *fakeObjectStore) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.calls++
	f.bucket = bucketName
	f.object = objectName
	f.options = opts
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: 42}, nil
}

func stageFile(t *testing.T) LocalFile {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*.png")
	require.NoError(t, err)
	_, err = f.WriteString("image")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return LocalFile{Path: f.Name(), Filename: "me.png", ContentType: "image/png", Size: 5}
}

func TestUploaderPublishesAndRemovesTempFile(t *testing.T) {
	store := &fakeObjectStore{}
	uploader := NewUploader(store, "media", "http://cdn.local/")
	file := stageFile(t)

	asset, err := uploader.Upload(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, "media", store.bucket)
	assert.Equal(t, "image/png", store.options.ContentType)
	assert.True(t, strings.HasPrefix(asset.ObjectName, "images/"))
	assert.True(t, strings.HasSuffix(asset.ObjectName, ".png"))
	assert.Equal(t, "http://cdn.local/media/"+asset.ObjectName, asset.URL)
	assert.Equal(t, int64(42), asset.Size)
	assert.NoFileExists(t, file.Path)
}

func TestUploaderFailureRemovesTempFile(t *testing.T) {
	store := &fakeObjectStore{err: errors.New("host unavailable")}
	uploader := NewUploader(store, "media", "http://cdn.local")
	file := stageFile(t)

	_, err := uploader.Upload(context.Background(), file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host unavailable")
	assert.NoFileExists(t, file.Path)
}

func TestUploaderRejectsMissingFile(t *testing.T) {
	store := &fakeObjectStore{}
	uploader := NewUploader(store, "media", "http://cdn.local")

	_, err := uploader.Upload(context.Background(), LocalFile{})
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Zero(t, store.calls)
}

func TestUploaderBreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := &fakeObjectStore{err: errors.New("host unavailable")}
	uploader := NewUploader(store, "media", "http://cdn.local")

	for i := 0; i < 3; i++ {
		_, err := uploader.Upload(context.Background(), stageFile(t))
		require.Error(t, err)
	}
	require.Equal(t, 3, store.calls)

	_, err := uploader.Upload(context.Background(), stageFile(t))
	require.Error(t, err)
	assert.Equal(t, 3, store.calls)
}
