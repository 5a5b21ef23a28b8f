package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDataType(t *testing.T) {
	tests := map[string]DataType{
		"integer":   DataTypeInteger,
		" Decimal ": DataTypeDecimal,
		"DATE":      DataTypeDate,
		"string":    DataTypeString,
		"varchar":   DataTypeString,
		"":          DataTypeString,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDataType(in), "ParseDataType(%q)", in)
	}
}

func TestDocumentTypeSirmProcess(t *testing.T) {
	yes, no := true, false
	assert.False(t, DocumentType{}.SirmProcess(), "null flag reads as false")
	assert.False(t, DocumentType{IsSirmProcess: &no}.SirmProcess())
	assert.True(t, DocumentType{IsSirmProcess: &yes}.SirmProcess())
}

func TestProcessingContextLifecycle(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local)
	key := DocumentKey{RawFilename: "1001-SAPXXXDE.tif", DocumentTypeCode: "SAPXXXDE", KeyValue: "1001"}
	pc := NewProcessingContext("/scans/in/1001-SAPXXXDE.tif", key, now)

	assert.Equal(t, "1001-SAPXXXDE.tif", pc.WorkingFile())
	assert.Equal(t, -1, pc.ValidationDocumentID)
	assert.Equal(t, now, pc.ValidationInsertTime)
	assert.False(t, pc.Recognized)
	assert.True(t, key.Parsed())

	sirm := true
	pc.ApplyDocumentType(DocumentType{
		Name:                      "SAPXXXDE",
		DocumentTypeID:            12,
		TopLevelFolderID:          3,
		KeyPropertyID:             25,
		HasKeyProperty:            true,
		WorkflowID:                7,
		WorkflowQueueID:           8,
		InitialWorkflowActivityID: 9,
		IsSirmProcess:             &sirm,
	})
	assert.True(t, pc.Recognized)
	assert.Equal(t, 12, pc.DocumentTypeID)
	assert.Equal(t, 25, pc.KeyPropertyID)
	assert.Equal(t, 9, pc.InitialWorkflowActivityID)
	assert.True(t, pc.IsSirmProcess)

	pc.ValidationDocumentID = 7781
	pc.ValidationCompleted = "2026-10-19T09:30:00"
	pc.ResetValidation()
	assert.Equal(t, -1, pc.ValidationDocumentID)
	assert.Empty(t, pc.ValidationCompleted)
}

func TestBatchSummaryAdd(t *testing.T) {
	var s BatchSummary
	for _, o := range []Outcome{OutcomeIndexed, OutcomeIndexed, OutcomeArchived, OutcomeSkipped, OutcomeFailed} {
		s.Add(Disposition{File: string(o), Outcome: o})
	}
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Indexed)
	assert.Equal(t, 1, s.Archived)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Len(t, s.Failures, 1)
	assert.Equal(t, "FAILED", s.Failures[0].File)
}

func TestDocumentKeyParsed(t *testing.T) {
	assert.False(t, DocumentKey{RawFilename: "scan.tif"}.Parsed())
}
