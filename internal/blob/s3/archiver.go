package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
)

// SignalArchiveStore provides the read access the archiver needs. The
// Postgres SignalStore satisfies it implicitly; the narrow interface keeps
// the archiver decoupled from the full store surface.
type SignalArchiveStore interface {
	// ListBefore returns all signals with a timestamp strictly before the
	// given cutoff time, oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.SignalResult, error)
}

// ArchiveImpl implements domain.Archiver by querying the signal store for
// aged records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step executed after the
// archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	signals SignalArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, signals SignalArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		signals: signals,
		audit:   audit,
	}
}

// ArchiveSignals queries all signals before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/signals/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	signals, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(signals) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(signals)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	path := archivePath("signals", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	count := int64(len(signals))

	if err := a.audit.Log(ctx, "archive.signals", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive signals audit log: %w", err)
	}

	return count, nil
}

// multipartThreshold is the payload size above which archive uploads switch
// to multipart. 8 MiB keeps single-request uploads for typical batches while
// staying above the S3 minimum part size.
const multipartThreshold = 8 << 20

// upload writes the archive payload, using a multipart upload for large
// batches and a single PutObject otherwise.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/signals/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element becomes a single compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
