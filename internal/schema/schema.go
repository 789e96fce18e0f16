// Package schema describes database schemas handed to the indexer and turns
// each table into a searchable document.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database is the schema of one logical database. Name scopes every indexed document.
type Database struct {
	Name        string  `json:"database_name" yaml:"database_name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Tables      []Table `json:"tables" yaml:"tables"`
}

// Table describes a single table.
type Table struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []Column       `json:"columns" yaml:"columns"`
	PrimaryKeys []string       `json:"primary_keys,omitempty" yaml:"primary_keys,omitempty"`
	ForeignKeys map[string]Ref `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
}

// Column describes a table column. Nullable defaults to true when omitted.
type Column struct {
	Name         string `json:"name" yaml:"name"`
	DataType     string `json:"data_type" yaml:"data_type"`
	Nullable     *bool  `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty" yaml:"is_primary_key,omitempty"`
	IsForeignKey bool   `json:"is_foreign_key,omitempty" yaml:"is_foreign_key,omitempty"`
	FKTable      string `json:"fk_table,omitempty" yaml:"fk_table,omitempty"`
	FKColumn     string `json:"fk_column,omitempty" yaml:"fk_column,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Ref points at a referenced column.
type Ref struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

func (r Ref) String() string {
	if r.Column == "" {
		return r.Table
	}
	return r.Table + "." + r.Column
}

// IsNullable reports whether the column accepts NULL.
func (c Column) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// ColumnCount returns the total number of columns across all tables.
func (d *Database) ColumnCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Columns)
	}
	return n
}

// Validate checks the schema can be indexed.
func (d *Database) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("database name is required")
	}
	if len(d.Tables) == 0 {
		return fmt.Errorf("database %s has no tables", d.Name)
	}

	seen := make(map[string]bool, len(d.Tables))
	for i, t := range d.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("table %d of database %s has no name", i, d.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate table %s in database %s", t.Name, d.Name)
		}
		seen[t.Name] = true

		for j, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("column %d of table %s has no name", j, t.Name)
			}
			if c.IsForeignKey && c.FKTable == "" {
				return fmt.Errorf("foreign key column %s.%s has no referenced table", t.Name, c.Name)
			}
		}
		for col, ref := range t.ForeignKeys {
			if ref.Table == "" {
				return fmt.Errorf("foreign key %s.%s has no referenced table", t.Name, col)
			}
		}
	}
	return nil
}

// LoadFile reads a schema description from a .json, .yaml or .yml file.
func LoadFile(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a schema description. ext selects the format and includes the leading dot.
func Parse(data []byte, ext string) (*Database, error) {
	var db Database
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &db); err != nil {
			return nil, fmt.Errorf("parse JSON schema: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &db); err != nil {
			return nil, fmt.Errorf("parse YAML schema: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema format %q", ext)
	}

	if err := db.Validate(); err != nil {
		return nil, err
	}
	return &db, nil
}

// SupportedExt reports whether Parse understands files with this extension.
func SupportedExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
