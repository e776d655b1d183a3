package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/erikldr/sortear/internal/canonical"
)

// Archiver uploads canonical audit event JSON to object storage.
type Archiver interface {
	ArchiveEvent(ctx context.Context, ev *Event) (objectKey string, err error)
}

// S3Archiver writes canonicalized audit events to S3 paths like:
//
//	s3://<bucket>/<prefix>/draws/YYYY/MM/DD/<eventID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, access keys) via the default config
// chain.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveEvent canonicalizes the full event envelope and uploads it,
// returning the object key so callers can persist the pointer.
func (s *S3Archiver) ArchiveEvent(ctx context.Context, ev *Event) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("nil event")
	}

	envelope := map[string]interface{}{
		"id":        ev.ID,
		"eventType": ev.EventType,
		"payload":   ev.Payload,
		"actor":     ev.Actor,
		"prevHash":  ev.PrevHash,
		"hash":      ev.Hash,
		"ts":        ev.Ts.Format(time.RFC3339Nano),
		"metadata":  ev.Metadata,
	}
	canonBytes, err := canonical.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("canonicalize envelope: %w", err)
	}

	objectKey := s.objectKey(ev)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(canonBytes),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return objectKey, nil
}

func (s *S3Archiver) objectKey(ev *Event) string {
	ts := time.Now().UTC()
	if !ev.Ts.IsZero() {
		ts = ev.Ts
	}
	year, month, day := ts.Date()
	return path.Join(s.prefix, "draws",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", ev.ID),
	)
}
