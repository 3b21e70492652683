package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"narrator/common"
)

var log = common.Logger("storage")

// Uploader stores a file under name and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, path, name string) (string, error)
}

// GCSUploader puts objects in a Cloud Storage bucket through the JSON API.
type GCSUploader struct {
	svc    *gcs.Service
	bucket string
	prefix string
}

// NewGCSUploader uses application default credentials unless client options are given.
func NewGCSUploader(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	if len(opts) == 0 {
		creds, err := google.FindDefaultCredentials(ctx, gcs.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSUploader{svc: svc, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSUploader) Upload(ctx context.Context, path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	obj := &gcs.Object{Name: g.prefix + name, ContentType: contentType(path)}
	res, err := g.svc.Objects.Insert(g.bucket, obj).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload %s to gs://%s: %w", name, g.bucket, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, res.Name), nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// LocalStore keeps copies in a directory and reports local:// URLs.
type LocalStore struct {
	Dir string
}

func (l *LocalStore) Upload(_ context.Context, path, name string) (string, error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(l.Dir, name)
	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("copy to local store: %w", err)
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		abs = dst
	}
	return "local://" + abs, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Publisher sends deliverables to remote storage, keeping a local copy when that is not possible.
type Publisher struct {
	Remote Uploader
	Local  *LocalStore
}

// NewPublisher configures GCS when a bucket is set. Credential problems downgrade to local only.
func NewPublisher(ctx context.Context, cfg *common.PipelineConfig) *Publisher {
	p := &Publisher{Local: &LocalStore{Dir: cfg.Storage.LocalDir}}
	if cfg.Storage.Bucket == "" {
		return p
	}
	remote, err := NewGCSUploader(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix)
	if err != nil {
		log.WithError(err).Warn("cloud storage unavailable, publishing locally")
		return p
	}
	p.Remote = remote
	return p
}

// Publish fills in the deliverable's URL. It errors only when neither store accepted the file.
func (p *Publisher) Publish(ctx context.Context, d common.Deliverable) (common.Deliverable, error) {
	name := filepath.Base(d.Path)
	if p.Remote != nil {
		url, err := p.Remote.Upload(ctx, d.Path, name)
		if err == nil {
			d.URL = url
			return d, nil
		}
		log.WithError(err).Warn("upload failed, keeping a local copy for retry")
	}
	if p.Local == nil {
		return d, fmt.Errorf("no storage configured for %s", name)
	}
	url, err := p.Local.Upload(ctx, d.Path, name)
	if err != nil {
		return d, err
	}
	d.URL = url
	return d, nil
}
