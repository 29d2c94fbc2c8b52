package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestHandleWait_ForwardsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wait", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"data":{"selector":"a","count":1,"elements":[{"text":"x"}]},"timing":{"total_ms":3}}`))
	}))
	defer srv.Close()

	h := handleWait(srv.Client(), srv.URL, "k")
	res, err := h(context.Background(), callRequest(map[string]any{"selector": "a", "wait_seconds": float64(5)}))
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Equal(t, map[string]any{"selector": "a", "wait_seconds": float64(5)}, got)
	assert.Contains(t, resultText(t, res), `"count": 1`)
}

func TestHandleGoToByHref_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"AMBIGUOUS_MATCH","message":"matched 3 elements"},"timing":{"total_ms":1}}`))
	}))
	defer srv.Close()

	h := handleGoToByHref(srv.Client(), srv.URL, "k")
	res, err := h(context.Background(), callRequest(map[string]any{"selector": "a"}))
	require.NoError(t, err)

	assert.True(t, res.IsError)
	assert.Equal(t, "AMBIGUOUS_MATCH: matched 3 elements", resultText(t, res))
}

func TestHandleWriteRows_ValidatesArguments(t *testing.T) {
	h := handleWriteRows(http.DefaultClient, "http://127.0.0.1:0", "k", "/api/v1/export/csv")

	tests := []struct {
		name string
		args map[string]any
	}{
		{"no file name", map[string]any{"columns": []any{"a"}, "rows": []any{}}},
		{"no columns", map[string]any{"file_name": "x.csv", "rows": []any{}}},
		{"rows not array", map[string]any{"file_name": "x.csv", "columns": []any{"a"}, "rows": "nope"}},
		{"row not object", map[string]any{"file_name": "x.csv", "columns": []any{"a"}, "rows": []any{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestHandleWriteRows_PostsToPath(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"data":{"file_name":"x.xlsx","rows":1},"timing":{"total_ms":2}}`))
	}))
	defer srv.Close()

	h := handleWriteRows(srv.Client(), srv.URL, "k", "/api/v1/export/xlsx")
	res, err := h(context.Background(), callRequest(map[string]any{
		"file_name": "x.xlsx",
		"columns":   []any{"a"},
		"rows":      []any{map[string]any{"a": "1"}},
	}))
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Equal(t, "/api/v1/export/xlsx", gotPath)
	assert.Equal(t, []any{"a"}, got["columns"])
	assert.Contains(t, resultText(t, res), `"rows": 1`)
}
