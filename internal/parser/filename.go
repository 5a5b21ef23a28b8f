// Package parser decomposes scanned-document filenames into their index fields.
//
// Filenames follow the layout
//
//	<key>[_<invoice>]-<document type>-<suffix>.tif
//
// for example "1001_9988-SAPXXXDE-abc123.tif". Parsing never fails: a name that
// does not follow the layout yields empty fields, and the document is later
// treated as unrecognized.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/harrison/docrouter/internal/models"
)

const (
	typeSeparator = "-"
	keySeparator  = "_"
)

// Parse extracts the document key fields from filename. Any directory part is ignored.
func Parse(filename string) models.DocumentKey {
	name := filepath.Base(filename)
	key := models.DocumentKey{RawFilename: name}

	parts := strings.Split(name, typeSeparator)
	if len(parts) < 2 {
		return key
	}

	head := parts[0]
	if strings.Contains(head, keySeparator) {
		v := strings.Split(head, keySeparator)
		key.KeyValue = v[0]
		key.InvoiceNumber = v[1]
	} else {
		// No underscore: the whole segment is the key.
		key.KeyValue = head
	}

	key.DocumentTypeCode = parts[1]
	return key
}
