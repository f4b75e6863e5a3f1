package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/duckmesh/tableagent/internal/query"
	"github.com/duckmesh/tableagent/internal/tools"
)

const maxRequestBytes = 1 << 20

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Toolbox == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset is not loaded", false, nil)
		return
	}
	schema, err := deps.Toolbox.Call(r.Context(), tools.GetSchemaTool, nil)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FAILED", "failed to describe dataset", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func handleListTools(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Toolbox == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset is not loaded", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": deps.Toolbox.Definitions()})
}

// handleQuery accepts the query_data argument object as the request body and
// runs it through the same tool the agent uses.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Toolbox == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASET_NOT_CONFIGURED", "dataset is not loaded", false, nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "failed to read request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Toolbox.Call(r.Context(), tools.QueryDataTool, body)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tools.ErrInvalidArguments) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	var queryErr *query.Error
	if errors.As(err, &queryErr) {
		extra := map[string]any{"details": err.Error()}
		if queryErr.Column != "" {
			extra["column"] = queryErr.Column
		}
		writeError(r.Context(), w, http.StatusBadRequest, string(queryErr.Kind), queryErr.Msg, false, extra)
		return
	}
	if r.Context().Err() != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "REQUEST_CANCELLED", "request was cancelled", true, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "query execution failed", true, map[string]any{"details": err.Error()})
}
