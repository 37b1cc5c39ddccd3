package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// S3API is the subset of the S3 client used by TranscriptStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TranscriptStore writes handed-off conversations to S3 so staff can read
// what the assistant said before they took over.
type TranscriptStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewTranscriptStore creates a store. If bucket is empty, all operations
// are no-ops.
func NewTranscriptStore(s3Client S3API, bucket string, logger *logging.Logger) *TranscriptStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptStore{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured.
func (s *TranscriptStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveTranscript scrubs and uploads record and appends it to the clinic's
// monthly manifest. It returns the object key, or "" when disabled.
func (s *TranscriptStore) ArchiveTranscript(ctx context.Context, record *TranscriptRecord) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if record == nil || record.ClinicID == "" {
		return "", errors.New("archive: clinic id required")
	}

	rec := *record
	rec.Version = TranscriptVersion
	rec.Messages = append([]Message(nil), record.Messages...)
	ScrubMessages(rec.Messages)
	rec.MessageCount = len(rec.Messages)
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = s.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("archive: marshal record: %w", err)
	}

	at := rec.ArchivedAt
	key := fmt.Sprintf("transcripts/v1/%s/%d/%02d/%02d/%s-%d.json",
		rec.ClinicID, at.Year(), at.Month(), at.Day(), shortHash(rec.PhoneHash), at.UnixMilli())

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived transcript", "clinic_id", rec.ClinicID, "s3_key", key, "message_count", rec.MessageCount)

	entry := ManifestEntry{
		S3Key:        key,
		PhoneHash:    rec.PhoneHash,
		Reason:       rec.Reason,
		ArchivedAt:   at.Format(time.RFC3339),
		MessageCount: rec.MessageCount,
	}
	if err := s.AppendManifest(ctx, rec.ClinicID, at, entry); err != nil {
		// The transcript is already stored; a missing manifest line is recoverable.
		s.logger.Warn("failed to append manifest", "error", err, "clinic_id", rec.ClinicID)
	}
	return key, nil
}

// AppendManifest appends a JSONL line to the clinic's manifest for the month
// of at. S3 has no append, so this is a read-modify-write.
func (s *TranscriptStore) AppendManifest(ctx context.Context, clinicID string, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	manifestKey := fmt.Sprintf("transcripts/v1/%s/manifests/%d-%02d.jsonl", clinicID, at.Year(), at.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "unknown"
	}
	return h
}
