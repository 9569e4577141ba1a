// Package sink delivers a job's generated artifacts to external destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/docker/docker/pkg/archive"
)

// ContextArchive is the object name of the gzipped build context.
const ContextArchive = "context.tar.gz"

// ErrNotFound is returned when a job has no stored object under the requested name.
var ErrNotFound = errors.New("object not found")

// S3Config configures an S3 compatible object store.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint is set for S3 compatible services (DigitalOcean Spaces, MinIO).
	// Requests then use path-style addressing.
	Endpoint  string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every key, default "jobs".
	Prefix string
	// DisableSSL is used by tests against plain HTTP endpoints.
	DisableSSL bool
}

// StoreResult describes an uploaded artifact set.
type StoreResult struct {
	// Locator is s3://bucket/prefix/jobID.
	Locator string
	// URLs maps each relative path to the object's URL.
	URLs map[string]string
}

// ObjectStore uploads and reads job artifacts.
type ObjectStore struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewObjectStore creates a session from static credentials.
func NewObjectStore(cfg S3Config) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg := &aws.Config{
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Region:      aws.String(cfg.Region),
		DisableSSL:  aws.Bool(cfg.DisableSSL),
	}
	if cfg.Region == "" {
		awsCfg.Region = aws.String("us-east-1")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}
	client := s3.New(sess)

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "jobs"
	}
	return &ObjectStore{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

func (s *ObjectStore) jobPrefix(jobID string) string {
	return s.prefix + "/" + jobID
}

// Locator returns the s3:// address of a job's artifacts.
func (s *ObjectStore) Locator(jobID string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.jobPrefix(jobID))
}

// Store uploads every regular file under dir to {prefix}/{jobID}/{relpath}.
func (s *ObjectStore) Store(ctx context.Context, dir, jobID string) (*StoreResult, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	res := &StoreResult{Locator: s.Locator(jobID), URLs: make(map[string]string, len(files))}
	for _, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(rel)
		url, err := s.uploadFile(ctx, p, s.jobPrefix(jobID)+"/"+rel)
		if err != nil {
			return nil, err
		}
		res.URLs[rel] = url
	}
	return res, nil
}

func (s *ObjectStore) uploadFile(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.upload(ctx, f, key)
}

func (s *ObjectStore) upload(ctx context.Context, body io.Reader, key string) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Location, nil
}

// StoreContext uploads dir as a gzipped tarball and returns its s3:// address,
// the form kaniko accepts as a build context.
func (s *ObjectStore) StoreContext(ctx context.Context, dir, jobID string) (string, error) {
	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{Compression: archive.Gzip})
	if err != nil {
		return "", fmt.Errorf("failed to archive build context: %w", err)
	}
	defer tar.Close()

	key := s.jobPrefix(jobID) + "/" + ContextArchive
	if _, err := s.upload(ctx, tar, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// List returns the relative paths stored for a job, sorted.
func (s *ObjectStore) List(ctx context.Context, jobID string) ([]string, error) {
	prefix := s.jobPrefix(jobID) + "/"
	var names []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			if rel != "" && rel != ContextArchive {
				names = append(names, rel)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

// Get reads one stored artifact.
func (s *ObjectStore) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.jobPrefix(jobID) + "/" + clean),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
