package filestore

import (
	"context"
	"fmt"
	"io"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

// Filer archives normalized audio in an S3 compatible store
type Filer struct {
	client *minio.Client
	bucket string
}

// NewFiler connects to the store and makes sure the bucket exists
func NewFiler(ctx context.Context, c *viper.Viper) (*Filer, error) {
	url := c.GetString("filer.url")
	if url == "" {
		return nil, fmt.Errorf("no url")
	}
	bucket := c.GetString("filer.bucket")
	if bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	mc, err := minio.New(url, &minio.Options{
		Creds:  credentials.NewStaticV4(c.GetString("filer.user"), c.GetString("filer.key"), ""),
		Secure: c.GetBool("filer.https")})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: mc, bucket: bucket}
	exists, err := mc.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
		goapp.Log.Info().Str("bucket", bucket).Msg("created bucket")
	}
	goapp.Log.Info().Str("url", url).Str("bucket", bucket).Msg("filer ready")
	return res, nil
}

// SaveFile stores the content under name
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	if _, err := f.client.PutObject(ctx, f.bucket, name, r, size,
		minio.PutObjectOptions{ContentType: "audio/wav"}); err != nil {
		return fmt.Errorf("can't save %s: %w", name, err)
	}
	return nil
}
