package markdown

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/text2sql-server/internal/schema"
)

const shopDictionary = "# shop\n\n" +
	"Online store, one schema per region.\n\n" +
	"## `users`\n\n" +
	"Registered customers.\n" +
	"Guests are not stored here.\n\n" +
	"- `signup_date`: day the account was created\n" +
	"- status - active, suspended or closed\n\n" +
	"## orders\n\n" +
	"One row per checkout.\n"

func TestParseDictionary(t *testing.T) {
	dict, err := ParseDictionary([]byte(shopDictionary))
	require.NoError(t, err)

	assert.Equal(t, "shop", dict.Database)
	assert.Equal(t, "Online store, one schema per region.", dict.Description)
	require.Contains(t, dict.Tables, "users")
	assert.Equal(t, "Registered customers. Guests are not stored here.", dict.Tables["users"].Description)
	assert.Equal(t, map[string]string{
		"signup_date": "day the account was created",
		"status":      "active, suspended or closed",
	}, dict.Tables["users"].Columns)
	assert.Equal(t, "One row per checkout.", dict.Tables["orders"].Description)
}

func TestDictionary_Apply(t *testing.T) {
	dict, err := ParseDictionary([]byte(shopDictionary))
	require.NoError(t, err)

	db := &schema.Database{
		Name: "shop",
		Tables: []schema.Table{
			{
				Name: "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer"},
					{Name: "signup_date", DataType: "date"},
					{Name: "status", DataType: "text", Description: "kept"},
				},
			},
			{Name: "orders", Description: "already described"},
			{Name: "coupons"},
		},
	}

	filled := dict.Apply(db)
	assert.Equal(t, 2, filled)
	assert.Equal(t, "Online store, one schema per region.", db.Description)
	assert.Equal(t, "Registered customers. Guests are not stored here.", db.Tables[0].Description)
	assert.Equal(t, "day the account was created", db.Tables[0].Columns[1].Description)
	assert.Equal(t, "kept", db.Tables[0].Columns[2].Description)
	assert.Equal(t, "already described", db.Tables[1].Description)
	assert.Empty(t, db.Tables[2].Description)
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.md")
	require.NoError(t, os.WriteFile(path, []byte(shopDictionary), 0o644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Len(t, dict.Tables, 2)

	_, err = LoadDictionary(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
