// Package objectstore keeps synthesized audio and source text in a NATS JetStream
// object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/voicebox/internal/core"
)

const (
	headerContentType  = "Content-Type"
	defaultContentType = "application/octet-stream"
	bucketReplicas     = 1
)

// Error message formats.
const (
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtGetObject    = "failed to get object '%s' from bucket '%s': %w"
	errFmtReadObject   = "failed to read object '%s': %w"
	errFmtCloseObject  = "failed to close object '%s': %w"
	errFmtPutObject    = "failed to put object '%s' to bucket '%s': %w"
)

// Store is a core.ObjectStore backed by a JetStream object store bucket.
type Store struct {
	bucket string
	store  nats.ObjectStore
}

var _ core.ObjectStore = (*Store)(nil)

// New binds to bucketName, creating the bucket on first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*Store, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("voicebox objects in %s", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    bucketReplicas,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &Store{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Download returns the object stored under key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf(errFmtGetObject, key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadObject, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtCloseObject, key, closeErr)
	}

	return data, nil
}

// Upload stores data under key. The content type is derived from the key's extension.
func (s *Store) Upload(ctx context.Context, key string, data []byte) error {
	headers := nats.Header{}
	headers.Set(headerContentType, ContentType(key))

	_, err := s.store.Put(&nats.ObjectMeta{Name: key, Headers: headers}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf(errFmtPutObject, key, s.bucket, err)
	}

	return nil
}

// ContentType returns the MIME type recorded for an object key.
func ContentType(key string) string {
	switch path.Ext(key) {
	case ".wav":
		return "audio/wav"
	case "":
		return defaultContentType
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		return defaultContentType
	}

	return contentType
}
