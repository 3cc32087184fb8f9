// Package objstore serves Deep Zoom pyramids stored in an S3-compatible bucket.
package objstore

import (
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"slidescope/internal/logging"
	"slidescope/internal/tile"
	"slidescope/internal/tile/dzi"
)

// Config locates a pyramid in object storage.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	// Key is the object key of the .dzi descriptor, e.g. "slides/S-1234.dzi".
	Key string `mapstructure:"key"`
}

// ObjectGetter is the subset of *minio.Client the source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Source fetches tiles as individual objects named
// <key without .dzi>_files/<level>/<col>_<row>.<format>.
type Source struct {
	client   ObjectGetter
	getter   func(ctx context.Context, key string) (io.ReadCloser, error)
	bucket   string
	filesKey string
	desc     tile.Descriptor
	logger   *zap.Logger
}

var _ tile.Source = (*Source)(nil)

// New connects to the endpoint in cfg and reads the descriptor.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return NewWithClient(ctx, client, cfg.Bucket, cfg.Key, logger)
}

// NewWithClient reads the descriptor at key through an existing client.
func NewWithClient(ctx context.Context, client ObjectGetter, bucket, key string, logger *zap.Logger) (*Source, error) {
	s := &Source{
		client:   client,
		bucket:   bucket,
		filesKey: strings.TrimSuffix(key, path.Ext(key)) + "_files",
		logger:   logging.OrNop(logger),
	}
	s.getter = s.getObject
	if err := s.loadDescriptor(ctx, key); err != nil {
		return nil, err
	}
	return s, nil
}

// newWithGetter is used by tests to replace the network with a map of objects.
func newWithGetter(ctx context.Context, get func(ctx context.Context, key string) (io.ReadCloser, error), key string) (*Source, error) {
	s := &Source{
		getter:   get,
		filesKey: strings.TrimSuffix(key, path.Ext(key)) + "_files",
		logger:   zap.NewNop(),
	}
	if err := s.loadDescriptor(ctx, key); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) loadDescriptor(ctx context.Context, key string) error {
	rc, err := s.getter(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get descriptor %s: %w", key, err)
	}
	defer rc.Close()

	desc, err := dzi.ParseDescriptor(rc)
	if err != nil {
		return err
	}
	s.desc = desc
	s.logger.Info("object store pyramid opened", zap.String("bucket", s.bucket), zap.String("key", key),
		zap.Int("width", desc.Width), zap.Int("height", desc.Height))
	return nil
}

func (s *Source) getObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Descriptor returns the pyramid description.
func (s *Source) Descriptor() tile.Descriptor {
	return s.desc
}

// Fetch downloads and decodes one tile.
func (s *Source) Fetch(ctx context.Context, id tile.ID) (image.Image, error) {
	if !s.desc.Contains(id) {
		return nil, fmt.Errorf("tile %s outside pyramid", id)
	}
	key := path.Join(s.filesKey, dzi.TilePath(id, s.desc.Format))
	rc, err := s.getter(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get tile %s: %w", id, err)
	}
	defer rc.Close()

	img, err := dzi.DecodeTile(rc)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", id, err)
	}
	return img, nil
}
