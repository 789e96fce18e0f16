// Package metadata asks a language model to describe tables that have no
// human-written description.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bull/text2sql-server/internal/llm"
	"github.com/bull/text2sql-server/internal/schema"
)

// DefaultMaxChars caps a generated description.
const DefaultMaxChars = 400

// describeTemperature leaves a little room for phrasing; SQL generation runs at 0.
const describeTemperature = 0.3

// Describer produces one- or two-sentence table descriptions.
type Describer struct {
	provider llm.Provider
	maxChars int
	logger   *slog.Logger
}

// NewDescriber creates a describer. Non-positive maxChars uses DefaultMaxChars.
func NewDescriber(provider llm.Provider, maxChars int, logger *slog.Logger) *Describer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Describer{
		provider: provider,
		maxChars: maxChars,
		logger:   logger,
	}
}

// DescribeTable returns a short description of t.
func (d *Describer) DescribeTable(ctx context.Context, t schema.Table) (string, error) {
	resp, err := d.provider.Complete(ctx, []llm.Message{
		llm.User(describePrompt(t)),
	}, llm.Options{Temperature: describeTemperature, MaxTokens: 200})
	if err != nil {
		return "", fmt.Errorf("describe table %s: %w", t.Name, err)
	}
	return d.truncate(strings.Join(strings.Fields(resp), " ")), nil
}

// DescribeMissing fills empty table descriptions in db. A failed table is
// logged and left empty; the count of described tables is returned.
func (d *Describer) DescribeMissing(ctx context.Context, db *schema.Database) int {
	described := 0
	for i := range db.Tables {
		table := &db.Tables[i]
		if table.Description != "" {
			continue
		}
		desc, err := d.DescribeTable(ctx, *table)
		if err != nil {
			d.logger.Warn("Table description failed, leaving empty", "table", table.Name, "error", err)
			continue
		}
		table.Description = desc
		described++
	}
	return described
}

func describePrompt(t schema.Table) string {
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = c.Name
	}

	rels := t.Relationships()
	fkCols := make([]string, 0, len(rels))
	for col := range rels {
		fkCols = append(fkCols, col)
	}
	sort.Strings(fkCols)
	fks := make([]string, len(fkCols))
	for i, col := range fkCols {
		fks[i] = col + " -> " + rels[col].String()
	}

	return fmt.Sprintf(`Generate a concise description of this database table:

Table Name: %s
Columns: %s
Primary Keys: %s
Foreign Keys: %s

Description (1-2 sentences):`,
		t.Name,
		strings.Join(columns, ", "),
		strings.Join(t.PrimaryKeys, ", "),
		strings.Join(fks, ", "),
	)
}

func (d *Describer) truncate(s string) string {
	if len(s) <= d.maxChars {
		return s
	}

	d.logger.Warn("Truncating table description", "from", len(s), "to", d.maxChars)
	cut := d.maxChars
	// Back up to a rune boundary.
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
