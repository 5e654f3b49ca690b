package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Zorrojurro/project-aarna/pkg/evidence"
)

// Pinned is an archived evidence document.
type Pinned struct {
	CID  string `json:"cid"`
	Key  string `json:"key"`
	Size int    `json:"size"`
	URL  string `json:"url,omitempty"`
}

// ContentStore archives documents in a bucket under their content identifier.
type ContentStore struct {
	objects S3Client
	bucket  string
	prefix  string
}

func NewContentStore(objects S3Client, bucket, prefix string) *ContentStore {
	return &ContentStore{objects: objects, bucket: bucket, prefix: prefix}
}

// PinFile stores body and returns its CID. Pinning identical content twice
// yields the same key.
func (s *ContentStore) PinFile(ctx context.Context, body io.Reader) (*Pinned, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	ref, err := evidence.Reference(data)
	if err != nil {
		return nil, err
	}
	key := s.prefix + ref
	if err := s.objects.Upload(ctx, s.bucket, key, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	pinned := &Pinned{CID: ref, Key: key, Size: len(data)}
	if url, err := s.objects.GetPresignedURL(ctx, s.bucket, key, 15*time.Minute); err == nil {
		pinned.URL = url
	}
	return pinned, nil
}

// Fetch returns the document stored under cid after checking its content.
func (s *ContentStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	rc, err := s.objects.Download(ctx, s.bucket, s.prefix+cid)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	ok, err := evidence.Matches(cid, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("evidence %s does not match its content", cid)
	}
	return data, nil
}

func (s *ContentStore) UnpinFile(ctx context.Context, cid string) error {
	return s.objects.Delete(ctx, s.bucket, s.prefix+cid)
}
