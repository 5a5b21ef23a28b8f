package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DataType is the declared data type of an index property
type DataType string

// Property data types understood by the indexing engine
const (
	DataTypeString  DataType = "string"
	DataTypeInteger DataType = "integer"
	DataTypeDecimal DataType = "decimal"
	DataTypeDate    DataType = "date"
)

// ParseDataType normalizes a stored data type name. Unknown names map to DataTypeString.
func ParseDataType(s string) DataType {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case DataTypeInteger:
		return DataTypeInteger
	case DataTypeDecimal:
		return DataTypeDecimal
	case DataTypeDate:
		return DataTypeDate
	default:
		return DataTypeString
	}
}

// DocumentKey holds the structured fields decomposed from an input filename
type DocumentKey struct {
	RawFilename      string // Filename without directory
	DocumentTypeCode string // Segment after the first '-'
	KeyValue         string // Order number (or other key) before the first '_'
	InvoiceNumber    string // Segment after the first '_' (optional)
	TripNumber       string // Reserved, never populated
}

// Parsed reports whether a document-type code could be extracted
func (k DocumentKey) Parsed() bool {
	return k.DocumentTypeCode != ""
}

// DocumentType is a document-type definition from the metadata store
type DocumentType struct {
	Name                      string
	DocumentTypeID            int
	DocumentTypeTag           string
	TopLevelFolderID          int // 0 when absent
	KeyPropertyID             int // 0 when absent
	HasKeyProperty            bool
	InitialWorkflowActivityID int
	WorkflowID                int // 0 means the type is workflow-less
	WorkflowQueueID           int
	IsSirmProcess             *bool // nil when the source row is null
}

// SirmProcess returns the SIRM flag, treating a null flag as false
func (d DocumentType) SirmProcess() bool {
	return d.IsSirmProcess != nil && *d.IsSirmProcess
}

// Property maps an index property tag to its numeric id
type Property struct {
	ID       int
	Tag      string
	DataType DataType
}

// CollatorPath maps a location code to the base directory for its unknown documents
type CollatorPath struct {
	Location string
	Path     string
}

// UnknownFolderState is the folder selected for the next unrecognized document
type UnknownFolderState struct {
	WorkingFolderName string
	FileCount         int
}

// ProcessingContext carries the state of a single file through the routing pipeline.
// A new context is created for every file and discarded afterwards.
type ProcessingContext struct {
	WorkingFilePath string
	Key             DocumentKey

	// Populated once the document type is recognized
	Recognized                bool
	DocumentTypeID            int
	DocumentTypeTag           string
	TopLevelFolderID          int
	KeyPropertyID             int
	HasKeyProperty            bool
	WorkflowID                int
	WorkflowQueueID           int
	InitialWorkflowActivityID int
	IsSirmProcess             bool

	// Validation bookkeeping
	ValidationInsertTime time.Time
	ValidationDocumentID int    // -1 when unset
	ValidationCompleted  string // empty when unset

	// Fallback routing state
	UnknownDirectory string
	UnknownFolder    UnknownFolderState
}

// NewProcessingContext creates a context for the file at workingPath
func NewProcessingContext(workingPath string, key DocumentKey, now time.Time) *ProcessingContext {
	return &ProcessingContext{
		WorkingFilePath:      workingPath,
		Key:                  key,
		ValidationInsertTime: now,
		ValidationDocumentID: -1,
	}
}

// WorkingFile returns the filename portion of the working path
func (c *ProcessingContext) WorkingFile() string {
	return filepath.Base(c.WorkingFilePath)
}

// ApplyDocumentType copies the recognized type's fields into the context
func (c *ProcessingContext) ApplyDocumentType(dt DocumentType) {
	c.Recognized = true
	c.DocumentTypeID = dt.DocumentTypeID
	c.DocumentTypeTag = dt.DocumentTypeTag
	c.TopLevelFolderID = dt.TopLevelFolderID
	c.KeyPropertyID = dt.KeyPropertyID
	c.HasKeyProperty = dt.HasKeyProperty
	c.WorkflowID = dt.WorkflowID
	c.WorkflowQueueID = dt.WorkflowQueueID
	c.InitialWorkflowActivityID = dt.InitialWorkflowActivityID
	c.IsSirmProcess = dt.SirmProcess()
}

// ResetValidation clears the validation fields so they never leak into another record
func (c *ProcessingContext) ResetValidation() {
	c.ValidationDocumentID = -1
	c.ValidationCompleted = ""
}
