package router

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/docrouter/internal/filelock"
	"github.com/harrison/docrouter/internal/models"
)

// ValidationRecord is the XML sidecar written next to an archived copy
type ValidationRecord struct {
	XMLName       xml.Name `xml:"FileAttributes"`
	InsertTime    string   `xml:"InsertTime"`
	DocumentID    string   `xml:"DocumentID"`
	CompletedDate string   `xml:"CompletedDate"`
}

// SidecarPath returns the sidecar path for a working file archived in dir
func SidecarPath(dir, workingFile string) string {
	stem := strings.TrimSuffix(workingFile, filepath.Ext(workingFile))
	return filepath.Join(dir, stem+".xml")
}

// ReadValidationRecord parses a sidecar file
func ReadValidationRecord(path string) (ValidationRecord, error) {
	var rec ValidationRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := xml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}

// writeValidation copies the working file into the validation archive and
// writes its sidecar. The validation id and completion date on pc are reset
// whether or not the write succeeds.
func writeValidation(dir string, pc *models.ProcessingContext, completed time.Time) (err error) {
	defer pc.ResetValidation()

	pc.ValidationCompleted = completed.Format(time.RFC3339)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create validation directory: %w", err)
	}

	if _, err := os.Stat(pc.WorkingFilePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, pc.WorkingFilePath)
		}
		return err
	}

	if _, err := filelock.CopyFile(pc.WorkingFilePath, filepath.Join(dir, pc.WorkingFile())); err != nil {
		return fmt.Errorf("copy to validation archive: %w", err)
	}

	rec := ValidationRecord{
		InsertTime:    pc.ValidationInsertTime.Format(time.RFC3339),
		DocumentID:    strconv.Itoa(pc.ValidationDocumentID),
		CompletedDate: pc.ValidationCompleted,
	}
	data, err := xml.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode validation record: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := filelock.AtomicWrite(SidecarPath(dir, pc.WorkingFile()), data); err != nil {
		return fmt.Errorf("write validation record: %w", err)
	}
	return nil
}
