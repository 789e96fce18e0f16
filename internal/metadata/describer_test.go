package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/text2sql-server/internal/llm"
	"github.com/bull/text2sql-server/internal/schema"
)

type fakeProvider struct {
	reply  string
	err    error
	failOn string
	prompt []string
	opts   []llm.Options
}

func (f *fakeProvider) Complete(_ context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	f.prompt = append(f.prompt, messages[0].Content)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	if f.failOn != "" && strings.Contains(messages[0].Content, "Table Name: "+f.failOn) {
		return "", errors.New("refused")
	}
	return f.reply, nil
}

func ordersTable() schema.Table {
	return schema.Table{
		Name:        "orders",
		PrimaryKeys: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "user_id", DataType: "integer", IsForeignKey: true, FKTable: "users", FKColumn: "id"},
		},
	}
}

func TestDescribeTable(t *testing.T) {
	p := &fakeProvider{reply: "  One row per\ncheckout.  "}
	d := NewDescriber(p, 0, nil)

	desc, err := d.DescribeTable(context.Background(), ordersTable())
	require.NoError(t, err)
	assert.Equal(t, "One row per checkout.", desc)

	require.Len(t, p.prompt, 1)
	assert.Contains(t, p.prompt[0], "Table Name: orders")
	assert.Contains(t, p.prompt[0], "Columns: id, user_id")
	assert.Contains(t, p.prompt[0], "Primary Keys: id")
	assert.Contains(t, p.prompt[0], "Foreign Keys: user_id -> users.id")
	assert.Equal(t, 0.3, p.opts[0].Temperature)
}

func TestDescribeTable_Error(t *testing.T) {
	d := NewDescriber(&fakeProvider{err: errors.New("quota")}, 0, nil)

	_, err := d.DescribeTable(context.Background(), ordersTable())
	assert.ErrorContains(t, err, "describe table orders: quota")
}

func TestDescribeMissing(t *testing.T) {
	p := &fakeProvider{reply: "Generated.", failOn: "coupons"}
	d := NewDescriber(p, 0, nil)

	db := &schema.Database{
		Name: "shop",
		Tables: []schema.Table{
			{Name: "users", Description: "Human written."},
			ordersTable(),
			{Name: "coupons"},
		},
	}

	n := d.DescribeMissing(context.Background(), db)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Human written.", db.Tables[0].Description)
	assert.Equal(t, "Generated.", db.Tables[1].Description)
	assert.Empty(t, db.Tables[2].Description)
	assert.Len(t, p.prompt, 2)
}

func TestTruncate(t *testing.T) {
	d := NewDescriber(nil, 10, nil)

	assert.Equal(t, "short", d.truncate("short"))
	assert.Equal(t, "abcdefghij", d.truncate("abcdefghijklmnop"))

	out := d.truncate(strings.Repeat("é", 20))
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 10)
}
