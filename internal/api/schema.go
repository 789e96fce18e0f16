package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/storage"
)

// DatabasesResponse lists indexed databases.
type DatabasesResponse struct {
	Databases []string `json:"databases"`
	Count     int      `json:"count"`
}

// TableInfo is one indexed table.
type TableInfo struct {
	Name           string `json:"table_name"`
	ColumnCount    int    `json:"column_count"`
	HasForeignKeys bool   `json:"has_foreign_keys"`
	Document       string `json:"document"`
}

// SchemaResponse lists the indexed tables of one database.
type SchemaResponse struct {
	Database string      `json:"database_name"`
	Tables   []TableInfo `json:"tables"`
}

// indexSchema accepts a schema as JSON, or YAML when the content type says so.
func (h *handler) indexSchema(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "request body too large", false, nil)
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body", false, nil)
		return
	}

	db, err := schema.Parse(body, schemaExt(r.Header.Get("Content-Type")))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), false, nil)
		return
	}

	result, err := h.schemas.IndexDatabase(r.Context(), db)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to index schema", "database", db.Name, "error", err)
		writeError(w, http.StatusBadGateway, CodeIndexing, "Failed to index schema", true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func schemaExt(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.Contains(mediaType, "yaml") {
		return ".yaml"
	}
	return ".json"
}

func (h *handler) listDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := h.schemas.ListDatabases(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list databases", "error", err)
		writeError(w, http.StatusBadGateway, CodeRetrieval, "Failed to list databases", true, nil)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, DatabasesResponse{Databases: names, Count: len(names)})
}

func (h *handler) getSchema(w http.ResponseWriter, r *http.Request) {
	database := chi.URLParam(r, "database")

	docs, err := h.schemas.ListTables(r.Context(), database)
	if err != nil {
		h.writeStoreError(w, r, database, err)
		return
	}

	tables := make([]TableInfo, len(docs))
	for i, doc := range docs {
		tables[i] = TableInfo{
			Name:           doc.Metadata.TableName,
			ColumnCount:    doc.Metadata.ColumnCount,
			HasForeignKeys: doc.Metadata.HasForeignKeys,
			Document:       doc.Content,
		}
	}
	writeJSON(w, http.StatusOK, SchemaResponse{Database: database, Tables: tables})
}

// deleteSchema answers 404 for a database that was never indexed.
func (h *handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	database := chi.URLParam(r, "database")

	if _, err := h.schemas.ListTables(r.Context(), database); err != nil {
		h.writeStoreError(w, r, database, err)
		return
	}
	if err := h.schemas.DeleteDatabase(r.Context(), database); err != nil {
		h.writeStoreError(w, r, database, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) writeStoreError(w http.ResponseWriter, r *http.Request, database string, err error) {
	if errors.Is(err, storage.ErrDatabaseNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, "database "+database+" is not indexed", false, nil)
		return
	}
	h.logger.ErrorContext(r.Context(), "Schema store failed", "database", database, "error", err)
	writeError(w, http.StatusBadGateway, CodeRetrieval, "Failed to access schema index", true, nil)
}
