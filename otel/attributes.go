package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrBatchStatus  = attribute.Key("connector.batch.status")
	AttrRecordStatus = attribute.Key("connector.record.status")
	AttrErrorAction  = attribute.Key("connector.error.action")
	AttrErrorPhase   = attribute.Key("connector.error.phase")
	AttrStartOffset  = attribute.Key("connector.batch.start_offset")
	AttrEndOffset    = attribute.Key("connector.batch.end_offset")
	AttrRecordCount  = attribute.Key("connector.batch.record_count")
	AttrRetryCount   = attribute.Key("connector.record.retry_count")
)

// Record status values
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Batch status values
const (
	BatchCommitted = "committed"
	BatchAborted   = "aborted"
)
