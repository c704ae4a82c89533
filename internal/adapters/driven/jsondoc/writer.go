// Package jsondoc serializes a snapshot into the self-describing JSON
// document format.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SnapshotWriter = (*Writer)(nil)

// Writer produces the document export format: a top-level `metadata` object
// and a `data` object partitioned by record kind. Records are emitted one at
// a time in fetch order, so output is deterministic and the snapshot is
// never duplicated in memory.
type Writer struct{}

// NewWriter creates a document writer
func NewWriter() *Writer {
	return &Writer{}
}

// Format returns the format this writer produces
func (w *Writer) Format() domain.ExportFormat {
	return domain.FormatDocument
}

// FileExtension returns the output filename extension
func (w *Writer) FileExtension() string {
	return "json"
}

// Write serializes the snapshot
func (w *Writer) Write(snapshot *domain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"metadata":`)
	if err := encodeValue(&buf, snapshot.Metadata); err != nil {
		return nil, err
	}

	buf.WriteString(`,"data":{"quantity":`)
	if err := encodeBucketMap(&buf, snapshot.Quantities); err != nil {
		return nil, err
	}

	buf.WriteString(`,"category":`)
	if err := encodeBucketMap(&buf, snapshot.Categories); err != nil {
		return nil, err
	}

	buf.WriteString(`,"workouts":`)
	if err := encodeRecordList(&buf, snapshot.Workouts); err != nil {
		return nil, err
	}

	buf.WriteString(`,"clinical":`)
	if err := encodeRecordList(&buf, snapshot.Clinical); err != nil {
		return nil, err
	}

	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// encodeBucketMap writes an object keyed by category name, preserving
// bucket order. encoding/json would sort a map's keys, which breaks the
// fetch-order guarantee, so the object is assembled by hand.
func encodeBucketMap(buf *bytes.Buffer, buckets []domain.CategoryBucket) error {
	buf.WriteByte('{')
	for i, bucket := range buckets {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, bucket.Category.Name()); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeRecordList(buf, bucket.Records); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeRecordList(buf *bytes.Buffer, records []domain.Record) error {
	buf.WriteByte('[')
	for i := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, &records[i]); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	buf.Write(out)
	return nil
}
