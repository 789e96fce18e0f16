package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/text2sql-server/internal/pipeline"
	"github.com/bull/text2sql-server/internal/storage"
)

// makeGenerateHandler creates the generate_sql tool handler.
// Rejected SQL is a result with Rejected set. Other failures become tool errors
// carrying only the client-safe message.
func makeGenerateHandler(svc QueryService) func(
	context.Context, *mcp.CallToolRequest, GenerateSQLInput,
) (*mcp.CallToolResult, GenerateSQLOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GenerateSQLInput) (
		*mcp.CallToolResult, GenerateSQLOutput, error,
	) {
		result, err := svc.Generate(ctx, pipeline.Request{
			Question:           input.Question,
			Database:           input.Database,
			IncludeExplanation: input.IncludeExplanation,
		})
		if err != nil {
			var perr *pipeline.Error
			if errors.As(err, &perr) && perr.SQLRejected {
				return nil, GenerateSQLOutput{
					TablesUsed: []string{},
					Warnings:   []string{},
					Rejected:   true,
					Errors:     perr.Details,
				}, nil
			}
			return nil, GenerateSQLOutput{}, errors.New(pipeline.SafeMessage(err))
		}

		return nil, GenerateSQLOutput{
			SQLQuery:    result.SQLQuery,
			Explanation: result.Explanation,
			Confidence:  result.Confidence,
			TablesUsed:  result.TablesUsed,
			Warnings:    result.Warnings,
			Cached:      result.Cached,
		}, nil
	}
}

// makeValidateHandler creates the validate_sql tool handler.
func makeValidateHandler(svc QueryService) func(
	context.Context, *mcp.CallToolRequest, ValidateSQLInput,
) (*mcp.CallToolResult, ValidateSQLOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateSQLInput) (
		*mcp.CallToolResult, ValidateSQLOutput, error,
	) {
		res := svc.Validate(input.SQL)
		out := ValidateSQLOutput{
			IsValid:  res.IsValid,
			Errors:   res.Errors,
			Warnings: res.Warnings,
		}
		if res.IsValid {
			out.Formatted = svc.Sanitize(input.SQL)
		}
		return nil, out, nil
	}
}

// makeListHandler creates the list_databases tool handler.
func makeListHandler(catalog SchemaCatalog) func(
	context.Context, *mcp.CallToolRequest, ListDatabasesInput,
) (*mcp.CallToolResult, ListDatabasesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDatabasesInput) (
		*mcp.CallToolResult, ListDatabasesOutput, error,
	) {
		names, err := catalog.ListDatabases(ctx)
		if err != nil {
			return nil, ListDatabasesOutput{}, fmt.Errorf("failed to list databases: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		return nil, ListDatabasesOutput{Databases: names, Count: len(names)}, nil
	}
}

// makeSchemaHandler creates the get_schema tool handler.
func makeSchemaHandler(catalog SchemaCatalog) func(
	context.Context, *mcp.CallToolRequest, GetSchemaInput,
) (*mcp.CallToolResult, GetSchemaOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetSchemaInput) (
		*mcp.CallToolResult, GetSchemaOutput, error,
	) {
		docs, err := catalog.ListTables(ctx, input.Database)
		if err != nil {
			if errors.Is(err, storage.ErrDatabaseNotFound) {
				return nil, GetSchemaOutput{
					Database: input.Database,
					Tables:   []TableSchema{},
					Found:    false,
				}, nil
			}
			return nil, GetSchemaOutput{}, fmt.Errorf("failed to load schema: %w", err)
		}

		return nil, GetSchemaOutput{
			Database: input.Database,
			Tables:   tableSchemas(docs),
			Found:    true,
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(catalog SchemaCatalog) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		names, err := catalog.ListDatabases(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to list databases: %w", err)
		}

		total := 0
		for _, name := range names {
			docs, err := catalog.ListTables(ctx, name)
			if err != nil {
				return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to list tables of %s: %w", name, err)
			}
			total += len(docs)
		}
		if names == nil {
			names = []string{}
		}

		return nil, StatusOutput{Databases: names, TotalTables: total}, nil
	}
}

func tableSchemas(docs []*storage.SchemaDocument) []TableSchema {
	tables := make([]TableSchema, len(docs))
	for i, doc := range docs {
		tables[i] = TableSchema{
			Name:           doc.Metadata.TableName,
			ColumnCount:    doc.Metadata.ColumnCount,
			HasForeignKeys: doc.Metadata.HasForeignKeys,
			Document:       doc.Content,
		}
	}
	return tables
}
