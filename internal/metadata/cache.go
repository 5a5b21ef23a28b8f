package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/harrison/docrouter/internal/models"
)

// Property tags resolved eagerly when the cache is built
const (
	TagDocumentTypeOutput = "SimonsDocumentName"
	TagTripNumber         = "TRIP_NUMBER"
	TagInvoiceNumber      = "InvoiceNo"
)

// Cache is a read-only snapshot of the reference tables for one run.
// It is never refreshed; a new run builds a new Cache.
type Cache struct {
	documentTypes []models.DocumentType
	properties    []models.Property
	collators     []models.CollatorPath

	// Eagerly resolved property ids. 0 means "do not emit this property".
	DocumentTypePropertyID int
	TripNumberPropertyID   int
	InvoiceNoPropertyID    int
}

// Load reads the three reference tables from src and resolves the eager property ids.
// Any read failure fails the whole load.
func Load(ctx context.Context, src Source) (*Cache, error) {
	types, err := src.ListDocumentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document types: %w", err)
	}
	props, err := src.ListProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}
	collators, err := src.ListCollatorPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collator paths: %w", err)
	}

	return NewCache(types, props, collators), nil
}

// NewCache builds a cache from rows already in memory
func NewCache(types []models.DocumentType, props []models.Property, collators []models.CollatorPath) *Cache {
	c := &Cache{
		documentTypes: types,
		properties:    props,
		collators:     collators,
	}
	c.DocumentTypePropertyID = c.FindPropertyID(TagDocumentTypeOutput)
	c.TripNumberPropertyID = c.FindPropertyID(TagTripNumber)
	c.InvoiceNoPropertyID = c.FindPropertyID(TagInvoiceNumber)
	return c
}

// FindDocumentType returns the definition whose name exactly matches name (case-sensitive)
func (c *Cache) FindDocumentType(name string) (models.DocumentType, bool) {
	for _, dt := range c.documentTypes {
		if dt.Name == name {
			return dt, true
		}
	}
	return models.DocumentType{}, false
}

// FindCollatorPath returns the unknown-folder base for a location code, or "" when the
// code is not a non-zero integer or has no row.
func (c *Cache) FindCollatorPath(location string) string {
	n, err := strconv.Atoi(strings.TrimSpace(location))
	if err != nil || n == 0 {
		return ""
	}
	for _, cp := range c.collators {
		if cp.Location == location {
			return cp.Path
		}
	}
	return ""
}

// FindPropertyID returns the id for tag, or 0 when tag is empty or unknown
func (c *Cache) FindPropertyID(tag string) int {
	if tag == "" {
		return 0
	}
	for _, p := range c.properties {
		if p.Tag == tag {
			return p.ID
		}
	}
	return 0
}

// PropertyDataType returns the declared data type of property id, defaulting to string
func (c *Cache) PropertyDataType(id int) models.DataType {
	for _, p := range c.properties {
		if p.ID == id {
			return p.DataType
		}
	}
	return models.DataTypeString
}

// Counts reports the number of rows loaded per table
func (c *Cache) Counts() (documentTypes, properties, collators int) {
	return len(c.documentTypes), len(c.properties), len(c.collators)
}
