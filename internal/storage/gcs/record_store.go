// Package gcs writes profile records as JSON objects to Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/hash/sha256"
)

const contentType = "application/json"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// objectWriter opens a writer for one object; the GCS client satisfies it
// through bucketWriter.
type objectWriter interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
}

type bucketWriter struct {
	bucket *storage.BucketHandle
}

func (b bucketWriter) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// RecordStore writes one object per profile. Object names are derived from
// the profile URL, so re-crawls overwrite in place.
type RecordStore struct {
	client *storage.Client
	writer objectWriter
	bucket string
	prefix string
}

// New creates a GCS-backed record store. Closing the store closes client.
func New(client *storage.Client, cfg Config) (*RecordStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	store, err := newWithWriter(bucketWriter{bucket: client.Bucket(cfg.Bucket)}, cfg)
	if err != nil {
		return nil, err
	}
	store.client = client
	return store, nil
}

func newWithWriter(w objectWriter, cfg Config) (*RecordStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &RecordStore{
		writer: w,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object path used for profileURL.
func (s *RecordStore) ObjectName(profileURL string) string {
	return path.Join(s.prefix, sha256.Key(profileURL)+".json")
}

// Write uploads rec and finalizes the object.
func (s *RecordStore) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	if rec.ProfileURL == "" {
		return fmt.Errorf("profile url is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	name := s.ObjectName(rec.ProfileURL)
	wc := s.writer.NewWriter(ctx, name, contentType)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (s *RecordStore) Close(context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

// URI returns the gs:// location of the object for profileURL.
func (s *RecordStore) URI(profileURL string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.ObjectName(profileURL))
}
