package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReferenceData is the YAML layout accepted by "docrouter metadata import"
type ReferenceData struct {
	DocumentTypes []DocumentTypeRow `yaml:"document_types"`
	Properties    []PropertyRow     `yaml:"properties"`
	CollatorPaths []CollatorPathRow `yaml:"collator_paths"`
}

// DocumentTypeRow is one document type in a reference file
type DocumentTypeRow struct {
	Name                      string `yaml:"name"`
	DocumentTypeID            int    `yaml:"document_type_id"`
	DocumentTypeTag           string `yaml:"document_type_tag"`
	TopLevelFolderID          *int   `yaml:"top_level_folder_id"`
	KeyPropertyID             *int   `yaml:"key_property_id"`
	HasKeyProperty            bool   `yaml:"has_key_property"`
	InitialWorkflowActivityID int    `yaml:"initial_workflow_activity_id"`
	WorkflowID                int    `yaml:"workflow_id"`
	WorkflowQueueID           int    `yaml:"workflow_queue_id"`
	SirmProcess               *bool  `yaml:"sirm_process"`
}

// PropertyRow is one property tag in a reference file
type PropertyRow struct {
	ID       int    `yaml:"id"`
	Tag      string `yaml:"tag"`
	DataType string `yaml:"data_type"`
}

// CollatorPathRow is one location mapping in a reference file
type CollatorPathRow struct {
	Location string `yaml:"location"`
	Path     string `yaml:"path"`
}

// LoadReferenceFile parses a reference data YAML file
func LoadReferenceFile(path string) (*ReferenceData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}

	var ref ReferenceData
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse reference file: %w", err)
	}

	for i, dt := range ref.DocumentTypes {
		if dt.Name == "" {
			return nil, fmt.Errorf("document_types[%d]: name is required", i)
		}
	}
	for i, p := range ref.Properties {
		if p.Tag == "" || p.ID <= 0 {
			return nil, fmt.Errorf("properties[%d]: id and tag are required", i)
		}
	}
	for i, cp := range ref.CollatorPaths {
		if cp.Location == "" || cp.Path == "" {
			return nil, fmt.Errorf("collator_paths[%d]: location and path are required", i)
		}
	}

	return &ref, nil
}

// ImportReference replaces or inserts every row of ref in one transaction
func (s *Store) ImportReference(ctx context.Context, ref *ReferenceData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, dt := range ref.DocumentTypes {
		var hasKey int
		if dt.HasKeyProperty {
			hasKey = 1
		}
		_, err := tx.ExecContext(ctx, `REPLACE INTO document_types
			(name, document_type_id, document_type_tag, dl_top_level_folder_id, key_property_id,
			 has_key_property, initial_workflow_activity_id, workflow_id, workflow_queue_id, sirm_process)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dt.Name, dt.DocumentTypeID, dt.DocumentTypeTag, nullInt(dt.TopLevelFolderID), nullInt(dt.KeyPropertyID),
			hasKey, dt.InitialWorkflowActivityID, dt.WorkflowID, dt.WorkflowQueueID, nullBool(dt.SirmProcess))
		if err != nil {
			return fmt.Errorf("import document type %s: %w", dt.Name, err)
		}
	}

	for _, p := range ref.Properties {
		dataType := p.DataType
		if dataType == "" {
			dataType = "string"
		}
		_, err := tx.ExecContext(ctx, `REPLACE INTO doclink_properties (property_id, property_tag, data_type) VALUES (?, ?, ?)`,
			p.ID, p.Tag, dataType)
		if err != nil {
			return fmt.Errorf("import property %s: %w", p.Tag, err)
		}
	}

	for _, cp := range ref.CollatorPaths {
		_, err := tx.ExecContext(ctx, `REPLACE INTO location_collator_paths (location, collator_path) VALUES (?, ?)`,
			cp.Location, cp.Path)
		if err != nil {
			return fmt.Errorf("import collator path %s: %w", cp.Location, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
