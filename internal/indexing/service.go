// Package indexing talks to the document-index engine that stores recognized
// documents, their properties and their workflow placement.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/docrouter/internal/models"
)

var (
	// ErrNotConnected is returned by document operations when no session is open
	ErrNotConnected = errors.New("indexing service not connected")

	// ErrInvalidDocumentID is returned when a commit yields an id of 0 or less
	ErrInvalidDocumentID = errors.New("indexing service returned an invalid document id")
)

// Handle identifies a document that has been created but not yet committed
type Handle string

// Service is a stateful session with the index engine. Connect opens the
// session for a batch; until it succeeds every document operation returns
// ErrNotConnected.
type Service interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	CreateDocument(ctx context.Context, folderID, documentTypeID int, path string) (Handle, error)
	SetProperty(ctx context.Context, h Handle, propertyID int, value string, dataType models.DataType) error
	Commit(ctx context.Context, h Handle) (int, error)
	PlaceInWorkflow(ctx context.Context, h Handle, workflowID, queueID, activityID int) error
}

// dateLayouts are the date forms accepted for date-typed properties
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"02/01/2006",
	time.RFC3339,
}

// TypedValue converts a raw property value to the Go value matching dataType.
// Integers and decimals are parsed; dates are normalized to YYYY-MM-DD.
func TypedValue(value string, dataType models.DataType) (any, error) {
	v := strings.TrimSpace(value)
	switch dataType {
	case models.DataTypeInteger:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", value)
		}
		return n, nil
	case models.DataTypeDecimal:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a decimal", value)
		}
		return f, nil
	case models.DataTypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, fmt.Errorf("value %q is not a date", value)
	default:
		return value, nil
	}
}
