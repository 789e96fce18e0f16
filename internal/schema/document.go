package schema

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bull/text2sql-server/internal/storage"
)

// documentNamespace seeds deterministic document IDs.
var documentNamespace = uuid.MustParse("5b7c2f1e-6a43-4d0e-9a1f-3c8e2d4b7a10")

// DocumentID returns the stable ID of a table's document. Re-indexing a table
// produces the same ID.
func DocumentID(database, table string) string {
	return uuid.NewSHA1(documentNamespace, []byte(database+"/"+table)).String()
}

// Relationships merges column-level foreign key flags with the table's
// foreign key map, keyed by local column.
func (t Table) Relationships() map[string]Ref {
	rels := make(map[string]Ref, len(t.ForeignKeys))
	for col, ref := range t.ForeignKeys {
		rels[col] = ref
	}
	for _, c := range t.Columns {
		if c.IsForeignKey && c.FKTable != "" {
			if _, ok := rels[c.Name]; !ok {
				rels[c.Name] = Ref{Table: c.FKTable, Column: c.FKColumn}
			}
		}
	}
	return rels
}

// BuildDocument renders a table as the text that gets embedded. The output
// depends only on the table definition.
func BuildDocument(database string, t Table) *storage.SchemaDocument {
	var b strings.Builder
	b.WriteString("Table: ")
	b.WriteString(t.Name)
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString("Description: ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}

	primary := make(map[string]bool, len(t.PrimaryKeys))
	for _, pk := range t.PrimaryKeys {
		primary[pk] = true
	}
	rels := t.Relationships()

	b.WriteString("\nColumns:\n")
	for _, c := range t.Columns {
		b.WriteString("- ")
		b.WriteString(c.Name)
		b.WriteString(" (")
		b.WriteString(c.DataType)
		b.WriteString(")")
		if c.IsPrimaryKey || primary[c.Name] {
			b.WriteString(" [PRIMARY KEY]")
		}
		if ref, ok := rels[c.Name]; ok {
			b.WriteString(" [FOREIGN KEY -> ")
			b.WriteString(ref.String())
			b.WriteString("]")
		}
		if !c.IsNullable() {
			b.WriteString(" [NOT NULL]")
		}
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}

	if len(rels) > 0 {
		cols := make([]string, 0, len(rels))
		for col := range rels {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		b.WriteString("\nRelationships:\n")
		for _, col := range cols {
			b.WriteString("- ")
			b.WriteString(col)
			b.WriteString(" references ")
			b.WriteString(rels[col].String())
			b.WriteString("\n")
		}
	}

	return &storage.SchemaDocument{
		ID:      DocumentID(database, t.Name),
		Content: strings.TrimRight(b.String(), "\n"),
		Metadata: storage.SchemaMetadata{
			DatabaseName:   database,
			TableName:      t.Name,
			ColumnCount:    len(t.Columns),
			HasForeignKeys: len(rels) > 0,
		},
	}
}

// BuildDocuments renders every table of db in declaration order.
func BuildDocuments(db *Database) []*storage.SchemaDocument {
	docs := make([]*storage.SchemaDocument, len(db.Tables))
	for i, t := range db.Tables {
		docs[i] = BuildDocument(db.Name, t)
	}
	return docs
}
