package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/text2sql-server/internal/cache"
	"github.com/bull/text2sql-server/internal/chain"
	"github.com/bull/text2sql-server/internal/confidence"
	"github.com/bull/text2sql-server/internal/llm"
	"github.com/bull/text2sql-server/internal/retriever"
	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/sqlguard"
	"github.com/bull/text2sql-server/internal/storage"
	"github.com/bull/text2sql-server/internal/stream"
)

type stubEmbedder struct{ err error }

func (e stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

type stubIndex struct {
	docs  []*storage.SchemaDocument
	calls int
}

func (i *stubIndex) Search(_ context.Context, _ []float32, limit int, database string) ([]*storage.ScoredDocument, error) {
	i.calls++
	var out []*storage.ScoredDocument
	for _, d := range i.docs {
		if d.Metadata.DatabaseName == database && len(out) < limit {
			out = append(out, &storage.ScoredDocument{Document: d, Score: 0.9})
		}
	}
	return out, nil
}

type scriptedProvider struct {
	sqlReply     string
	explainReply string
	err          error
	calls        int
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if len(messages) == 2 {
		return p.sqlReply, nil
	}
	return p.explainReply, nil
}

func shopIndex() *stubIndex {
	usersTable := schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer", IsPrimaryKey: true},
			{Name: "signup_date", DataType: "date"},
		},
	}
	return &stubIndex{docs: []*storage.SchemaDocument{schema.BuildDocument("shop", usersTable)}}
}

type fixture struct {
	service  *Service
	index    *stubIndex
	provider *scriptedProvider
}

func newFixture(t *testing.T, provider *scriptedProvider, embedErr error) *fixture {
	t.Helper()
	index := shopIndex()
	svc := NewService(
		retriever.New(stubEmbedder{err: embedErr}, index, nil),
		chain.New(provider, llm.Options{MaxTokens: 2000}, nil),
		sqlguard.NewValidator(nil),
		confidence.NewStepScorer(),
		cache.NewQueryCache(cache.NewMemoryStore(nil), time.Hour, nil),
		Options{},
		nil,
	)
	return &fixture{service: svc, index: index, provider: provider}
}

const signupSQL = "SELECT COUNT(*) FROM users WHERE signup_date >= DATE '2024-05-01'"

func TestGenerate_EndToEnd(t *testing.T) {
	f := newFixture(t, &scriptedProvider{
		sqlReply:     "```sql\n" + signupSQL + "\n```",
		explainReply: "Counts users who signed up since May.",
	}, nil)

	res, err := f.service.Generate(context.Background(), Request{
		Question:           "how many users signed up last month",
		Database:           "shop",
		IncludeExplanation: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.SQLQuery, "SELECT COUNT(*)"), res.SQLQuery)
	assert.Contains(t, res.SQLQuery, "FROM users")
	assert.Equal(t, []string{"users"}, res.TablesUsed)
	assert.Equal(t, 0.6, res.Confidence)
	assert.Equal(t, "Counts users who signed up since May.", res.Explanation)
	assert.Contains(t, res.SchemaContext, "Table: users")
	assert.Empty(t, res.Warnings)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, f.provider.calls)
}

func TestGenerate_CacheHit(t *testing.T) {
	f := newFixture(t, &scriptedProvider{sqlReply: "```sql\nSELECT id FROM users\n```"}, nil)
	ctx := context.Background()
	req := Request{Question: "list user ids", Database: "shop"}

	first, err := f.service.Generate(ctx, req)
	require.NoError(t, err)

	req.Question = "  list   user ids "
	second, err := f.service.Generate(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.SQLQuery, second.SQLQuery)
	assert.Equal(t, first.TablesUsed, second.TablesUsed)
	assert.Equal(t, 1, f.index.calls)
	assert.Equal(t, 1, f.provider.calls)
}

func TestGenerate_CachedEntryWithoutExplanationIsMissWhenExplanationWanted(t *testing.T) {
	f := newFixture(t, &scriptedProvider{
		sqlReply:     "SELECT id FROM users",
		explainReply: "Lists ids.",
	}, nil)
	ctx := context.Background()

	_, err := f.service.Generate(ctx, Request{Question: "ids", Database: "shop"})
	require.NoError(t, err)

	res, err := f.service.Generate(ctx, Request{Question: "ids", Database: "shop", IncludeExplanation: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "Lists ids.", res.Explanation)
}

func TestGenerate_DangerousAndStackedSQLRejected(t *testing.T) {
	f := newFixture(t, &scriptedProvider{
		sqlReply:     "DROP TABLE users; SELECT 1",
		explainReply: "never requested",
	}, nil)

	res, err := f.service.Generate(context.Background(), Request{
		Question:           "remove users",
		Database:           "shop",
		IncludeExplanation: true,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.False(t, KindOf(err).Retryable())

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Details, "Dangerous operation detected: DROP")
	assert.Contains(t, perr.Details, sqlguard.MsgMultipleStatements)
	assert.True(t, perr.SQLRejected)

	// No explanation is requested for rejected SQL.
	assert.Equal(t, 1, f.provider.calls)
}

func TestGenerate_StackedStatementBehindQuotedCommentMarkersRejected(t *testing.T) {
	f := newFixture(t, &scriptedProvider{
		sqlReply:     "SELECT '/*'; DROP TABLE users; SELECT '*/'",
		explainReply: "never requested",
	}, nil)

	_, err := f.service.Generate(context.Background(), Request{
		Question: "show everything",
		Database: "shop",
	})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.SQLRejected)
	assert.Contains(t, perr.Details, "Dangerous operation detected: DROP")
	assert.Contains(t, perr.Details, sqlguard.MsgMultipleStatements)
}

func TestGenerate_RejectedResultIsNotCached(t *testing.T) {
	provider := &scriptedProvider{sqlReply: "DELETE FROM users"}
	f := newFixture(t, provider, nil)
	ctx := context.Background()
	req := Request{Question: "clean up", Database: "shop"}

	_, err := f.service.Generate(ctx, req)
	require.Error(t, err)

	provider.sqlReply = "SELECT id FROM users"
	res, err := f.service.Generate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestGenerate_RetrievalFailure(t *testing.T) {
	f := newFixture(t, &scriptedProvider{}, errors.New("connection refused"))

	_, err := f.service.Generate(context.Background(), Request{Question: "q", Database: "shop"})
	assert.Equal(t, KindRetrieval, KindOf(err))
	assert.True(t, KindOf(err).Retryable())
	assert.Equal(t, "Failed to retrieve schema context", SafeMessage(err))
	assert.Equal(t, 0, f.provider.calls)
}

func TestGenerate_GenerationFailure(t *testing.T) {
	f := newFixture(t, &scriptedProvider{err: errors.New("upstream 500 with secret detail")}, nil)

	_, err := f.service.Generate(context.Background(), Request{Question: "q", Database: "shop"})
	assert.Equal(t, KindGeneration, KindOf(err))
	assert.NotContains(t, SafeMessage(err), "secret")
}

func TestGenerate_InvalidRequest(t *testing.T) {
	f := newFixture(t, &scriptedProvider{sqlReply: "SELECT 1"}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{name: "empty question", req: Request{Question: "   ", Database: "shop"}, want: "question must not be empty"},
		{name: "long question", req: Request{Question: strings.Repeat("é", 501), Database: "shop"}, want: "question exceeds the maximum length"},
		{name: "missing database", req: Request{Question: "q"}, want: "database name must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Generate(ctx, tt.req)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tt.want, SafeMessage(err))
		})
	}

	_, err := f.service.Generate(ctx, Request{Question: strings.Repeat("é", 500), Database: "shop"})
	assert.NoError(t, err)
}

func TestGenerate_NoDocumentsLowConfidence(t *testing.T) {
	f := newFixture(t, &scriptedProvider{sqlReply: "SELECT 1"}, nil)

	res, err := f.service.Generate(context.Background(), Request{Question: "q", Database: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 0.4, res.Confidence)
	assert.Empty(t, res.TablesUsed)
}

func TestStream_Success(t *testing.T) {
	f := newFixture(t, &scriptedProvider{
		sqlReply:     "SELECT id FROM users",
		explainReply: "Lists user ids.",
	}, nil)

	var buf bytes.Buffer
	err := f.service.Stream(context.Background(), Request{
		Question:           "ids",
		Database:           "shop",
		IncludeExplanation: true,
	}, stream.NewEmitter(&buf, 0))
	require.NoError(t, err)

	out := buf.String()
	sqlAt := strings.Index(out, "event: sql\n")
	firstChunk := strings.Index(out, "event: explanation\ndata: {\"chunk\":\"Lists \"}")
	doneAt := strings.Index(out, "event: done\n")

	require.NotEqual(t, -1, sqlAt)
	require.NotEqual(t, -1, firstChunk)
	require.NotEqual(t, -1, doneAt)
	assert.Less(t, sqlAt, firstChunk)
	assert.Less(t, firstChunk, doneAt)
	assert.Equal(t, 3, strings.Count(out, "event: explanation\n"))
	assert.True(t, strings.HasSuffix(out, "event: done\ndata: {}\n\n"))
	assert.Contains(t, out, `"tables_used":["users"]`)
}

func TestStream_FailureEmitsGenericError(t *testing.T) {
	f := newFixture(t, &scriptedProvider{err: errors.New("api key sk-live-123 invalid")}, nil)

	var buf bytes.Buffer
	err := f.service.Stream(context.Background(), Request{Question: "q", Database: "shop"}, stream.NewEmitter(&buf, 0))
	require.Error(t, err)

	assert.Equal(t,
		"event: error\ndata: {\"detail\":\"Failed to generate SQL\"}\n\nevent: done\ndata: {}\n\n",
		buf.String())
}
