package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/sony/gobreaker"

	"github.com/videotube/api/internal/metrics"
)

const uploadTimeout = 30 * time.Second

// Asset describes a file published on the media host.
type Asset struct {
	URL        string
	ObjectName string
	Size       int64
}

// Host publishes staged files and returns their public URL.
type Host interface {
	Upload(ctx context.Context, file LocalFile) (Asset, error)
}

// objectStore is the subset of *minio.Client used for uploads.
type objectStore interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader publishes files to a MinIO bucket. Calls go through a circuit
// breaker so a failing media host is not hammered by every request.
type Uploader struct {
	store   objectStore
	bucket  string
	baseURL string
	breaker *gobreaker.CircuitBreaker
	nowFunc func() time.Time
}

// NewUploader builds an Uploader. publicBaseURL is the origin that serves bucket objects.
func NewUploader(store objectStore, bucket, publicBaseURL string) *Uploader {
	return &Uploader{
		store:   store,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "media-host",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
		nowFunc: time.Now,
	}
}

// Upload transfers file to the bucket. The staged file is removed whether or not the upload succeeds.
func (u *Uploader) Upload(ctx context.Context, file LocalFile) (asset Asset, err error) {
	defer file.Remove()
	defer func() { metrics.MediaUpload(err) }()

	if file.Path == "" {
		return Asset{}, ErrNoFile
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	objectName := u.objectName(file.Filename)
	result, err := u.breaker.Execute(func() (interface{}, error) {
		return u.store.FPutObject(ctx, u.bucket, objectName, file.Path, minio.PutObjectOptions{
			ContentType: file.ContentType,
			UserMetadata: map[string]string{
				"original-filename": file.Filename,
			},
		})
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload %q: %w", file.Filename, err)
	}

	size := file.Size
	if info, ok := result.(minio.UploadInfo); ok && info.Size > 0 {
		size = info.Size
	}

	return Asset{
		URL:        fmt.Sprintf("%s/%s/%s", u.baseURL, u.bucket, objectName),
		ObjectName: objectName,
		Size:       size,
	}, nil
}

func (u *Uploader) objectName(filename string) string {
	day := u.nowFunc().UTC().Format("2006/01/02")
	return path.Join("images", day, uuid.NewString()+extension(filename))
}
