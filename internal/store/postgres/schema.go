package postgres

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// Schema renders the DDL for the given table names.
func Schema(tables *TableNames) (string, error) {
	var buf bytes.Buffer
	if err := schemaTemplate.Execute(&buf, tables); err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return buf.String(), nil
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl, err := Schema(s.tables)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
