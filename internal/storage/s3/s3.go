// Package s3 implements storage.Store on Amazon S3 (and S3-compatible
// endpoints such as MinIO) using aws-sdk-go-v2.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"datalake/internal/storage"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

// API is the subset of *s3.Client the store uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Uploader is the subset of *manager.Uploader the store uses.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

func init() {
	storage.Register("s3", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		client, err := NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return New(cfg.URL, client, manager.NewUploader(client))
	})
}

// NewClient builds an S3 client from the shared AWS config chain, honouring an
// explicit region, profile and endpoint override.
func NewClient(ctx context.Context, c storage.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	}), nil
}

// Store is a bucket/prefix-rooted storage.Store.
type Store struct {
	url      string
	bucket   string
	prefix   string
	client   API
	uploader Uploader
}

var _ storage.Store = (*Store)(nil)

// New returns a Store for loc (s3://bucket/prefix).
func New(loc string, client API, up Uploader) (*Store, error) {
	bucket, prefix, err := storage.SplitBucket(loc)
	if err != nil {
		return nil, err
	}
	return &Store{url: loc, bucket: bucket, prefix: prefix, client: client, uploader: up}, nil
}

func (s *Store) URL() string { return s.url }

// fullKey maps a relative key to its S3 key. "." is the root itself, used
// when the store is rooted at a single object.
func (s *Store) fullKey(key string) string {
	if key == "." {
		return s.prefix
	}
	return storage.Join(s.prefix, key)
}

func (s *Store) relKey(full string) string {
	if s.prefix == "" {
		return full
	}
	return strings.TrimPrefix(strings.TrimPrefix(full, s.prefix), "/")
}

// listPrefix turns a relative prefix into an S3 prefix that matches whole
// path segments only ("songs" must not match "songs_v2/").
func (s *Store) listPrefix(prefix string) string {
	p := s.fullKey(prefix)
	if p != "" {
		p += "/"
	}
	return p
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.listPrefix(prefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list s3://%s/%s: %w", s.bucket, s.listPrefix(prefix), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, storage.Object{Key: s.relKey(key), Size: aws.ToInt64(obj.Size)})
		}
	}
	if len(out) == 0 {
		return s.exact(ctx, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// exact lists the object named by prefix itself, matching the file store where
// a root or prefix naming a regular file lists that one file. The exact key
// sorts before every key it prefixes, so one result is enough.
func (s *Store) exact(ctx context.Context, prefix string) ([]storage.Object, error) {
	full := s.fullKey(prefix)
	if full == "" {
		return nil, nil
	}
	page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(full),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: list s3://%s/%s: %w", s.bucket, full, err)
	}
	if len(page.Contents) == 0 || aws.ToString(page.Contents[0].Key) != full {
		return nil, nil
	}
	key := prefix
	if key == "" {
		key = "."
	}
	return []storage.Object{{Key: key, Size: aws.ToInt64(page.Contents[0].Size)}}, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full := s.fullKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3: get s3://%s/%s: %w", s.bucket, full, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("s3: get s3://%s/%s: %w", s.bucket, full, err)
	}
	return out.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	full := s.fullKey(key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3: put s3://%s/%s: %w", s.bucket, full, err)
	}
	return nil
}

// Delete removes one key. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	full := s.fullKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return fmt.Errorf("s3: delete s3://%s/%s: %w", s.bucket, full, err)
	}
	return nil
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	if s.fullKey(prefix) == "" {
		return fmt.Errorf("s3: delete s3://%s: refusing to empty bucket", s.bucket)
	}
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(objs); start += deleteBatch {
		end := min(start+deleteBatch, len(objs))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, o := range objs[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(s.fullKey(o.Key))})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3: delete s3://%s/%s: %w", s.bucket, s.listPrefix(prefix), err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3: delete s3://%s/%s: %d errors, first %s: %s",
				s.bucket, aws.ToString(e.Key), len(out.Errors), aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}
	return nil
}
