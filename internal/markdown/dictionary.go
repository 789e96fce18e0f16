package markdown

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bull/text2sql-server/internal/schema"
)

// columnLineRe matches "- `column`: description" bullets under a table heading.
var columnLineRe = regexp.MustCompile("^[-*]\\s+`?([A-Za-z_][A-Za-z0-9_]*)`?\\s*(?::|\\s-\\s)\\s*(.+)$")

// Dictionary holds human-written descriptions for a database. The H1 heading
// names the database, each H2 heading names a table.
type Dictionary struct {
	Database    string
	Description string
	Tables      map[string]TableEntry
}

// TableEntry describes a table and, optionally, some of its columns.
type TableEntry struct {
	Description string
	Columns     map[string]string
}

// LoadDictionary reads and parses a markdown data dictionary.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return ParseDictionary(data)
}

// ParseDictionary builds a Dictionary from markdown.
func ParseDictionary(source []byte) (*Dictionary, error) {
	sections, err := NewChunker().Sections(source)
	if err != nil {
		return nil, err
	}

	dict := &Dictionary{Tables: make(map[string]TableEntry)}
	for _, s := range sections {
		name := strings.Trim(s.Title, "` ")
		switch s.Level {
		case 1:
			if dict.Database == "" {
				dict.Database = name
				dict.Description, _ = splitBody(s.Body)
			}
		case 2:
			desc, cols := splitBody(s.Body)
			dict.Tables[name] = TableEntry{Description: desc, Columns: cols}
		}
	}
	return dict, nil
}

// splitBody separates column bullets from the prose around them.
func splitBody(body string) (string, map[string]string) {
	var prose []string
	cols := make(map[string]string)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if m := columnLineRe.FindStringSubmatch(line); m != nil {
			cols[m[1]] = strings.TrimSpace(m[2])
			continue
		}
		if line != "" {
			prose = append(prose, line)
		}
	}
	return strings.Join(strings.Fields(strings.Join(prose, " ")), " "), cols
}

// Apply copies descriptions into db where db has none. It returns how many
// tables and columns were filled.
func (d *Dictionary) Apply(db *schema.Database) int {
	filled := 0
	if db.Description == "" && d.Description != "" {
		db.Description = d.Description
	}

	for i := range db.Tables {
		table := &db.Tables[i]
		entry, ok := d.Tables[table.Name]
		if !ok {
			continue
		}
		if table.Description == "" && entry.Description != "" {
			table.Description = entry.Description
			filled++
		}
		for j := range table.Columns {
			col := &table.Columns[j]
			if desc, ok := entry.Columns[col.Name]; ok && col.Description == "" {
				col.Description = desc
				filled++
			}
		}
	}
	return filled
}
