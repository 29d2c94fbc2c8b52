package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiResponse mirrors the browserkit API envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Timing struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
}

func main() {
	apiURL := os.Getenv("BROWSERKIT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("BROWSERKIT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "BROWSERKIT_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"browserkit",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	// Actions share one browser page; calls see the page left by earlier ones.
	client := &http.Client{Timeout: 150 * time.Second}

	goToTool := mcp.NewTool("go_to",
		mcp.WithDescription("Load a URL in the shared browser page and wait for it to finish loading."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute URL to navigate to"),
		),
	)
	s.AddTool(goToTool, handleGoTo(client, apiURL, apiKey))

	goToByHrefTool := mcp.NewTool("go_to_by_href",
		mcp.WithDescription("Find the single element matching a CSS selector on the current page and navigate to its href. Fails if zero or several elements match."),
		mcp.WithString("selector",
			mcp.Required(),
			mcp.Description("CSS selector matching exactly one link"),
		),
	)
	s.AddTool(goToByHrefTool, handleGoToByHref(client, apiURL, apiKey))

	waitTool := mcp.NewTool("wait_for_elements",
		mcp.WithDescription("Wait until a CSS selector matches at least one element on the current page and return the text and href of every match in document order."),
		mcp.WithString("selector",
			mcp.Required(),
			mcp.Description("CSS selector to wait for"),
		),
		mcp.WithNumber("wait_seconds",
			mcp.Description("Maximum seconds to wait (1-120). Defaults to the server setting."),
		),
	)
	s.AddTool(waitTool, handleWait(client, apiURL, apiKey))

	writeCSVTool := mcp.NewTool("write_csv",
		mcp.WithDescription("Write rows to a CSV file in the server's export directory, replacing any existing file. Every row must have exactly the listed columns as keys."),
		mcp.WithString("file_name",
			mcp.Required(),
			mcp.Description("Bare file name, e.g. 'links.csv'"),
		),
		mcp.WithArray("columns",
			mcp.Required(),
			mcp.Description("Header row and field order"),
		),
		mcp.WithArray("rows",
			mcp.Required(),
			mcp.Description("List of objects keyed by column name"),
		),
	)
	s.AddTool(writeCSVTool, handleWriteRows(client, apiURL, apiKey, "/api/v1/export/csv"))

	writeXLSXTool := mcp.NewTool("write_xlsx",
		mcp.WithDescription("Write rows to a one-sheet Excel workbook in the server's export directory. Same rules as write_csv."),
		mcp.WithString("file_name",
			mcp.Required(),
			mcp.Description("Bare file name, e.g. 'links.xlsx'"),
		),
		mcp.WithArray("columns",
			mcp.Required(),
			mcp.Description("Header row and field order"),
		),
		mcp.WithArray("rows",
			mcp.Required(),
			mcp.Description("List of objects keyed by column name"),
		),
	)
	s.AddTool(writeXLSXTool, handleWriteRows(client, apiURL, apiKey, "/api/v1/export/xlsx"))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the browserkit API and decodes the envelope.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

// toolResult turns an API call outcome into an MCP result.
func toolResult(resp *apiResponse, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)
		}
		return mcp.NewToolResultError(msg), nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
		return mcp.NewToolResultText(string(resp.Data)), nil
	}
	return mcp.NewToolResultText(pretty.String()), nil
}

func handleGoTo(client *http.Client, apiURL, apiKey string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		return toolResult(apiPost(ctx, client, apiURL, apiKey, "/api/v1/navigate",
			map[string]string{"url": url}))
	}
}

func handleGoToByHref(client *http.Client, apiURL, apiKey string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		selector, err := request.RequireString("selector")
		if err != nil {
			return mcp.NewToolResultError("selector is required"), nil
		}
		return toolResult(apiPost(ctx, client, apiURL, apiKey, "/api/v1/navigate/href",
			map[string]string{"selector": selector}))
	}
}

func handleWait(client *http.Client, apiURL, apiKey string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		selector, err := request.RequireString("selector")
		if err != nil {
			return mcp.NewToolResultError("selector is required"), nil
		}

		payload := map[string]any{"selector": selector}
		if secs := int(request.GetFloat("wait_seconds", 0)); secs > 0 {
			payload["wait_seconds"] = secs
		}
		return toolResult(apiPost(ctx, client, apiURL, apiKey, "/api/v1/wait", payload))
	}
}

// handleWriteRows serves both export tools; path selects the format.
func handleWriteRows(client *http.Client, apiURL, apiKey, path string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fileName, err := request.RequireString("file_name")
		if err != nil {
			return mcp.NewToolResultError("file_name is required"), nil
		}
		columns, err := request.RequireStringSlice("columns")
		if err != nil {
			return mcp.NewToolResultError("columns is required and must be an array of strings"), nil
		}
		rows, ok := request.GetArguments()["rows"].([]any)
		if !ok {
			return mcp.NewToolResultError("rows is required and must be an array of objects"), nil
		}
		for i, r := range rows {
			if _, ok := r.(map[string]any); !ok {
				return mcp.NewToolResultError(fmt.Sprintf("rows[%d] must be an object", i)), nil
			}
		}

		return toolResult(apiPost(ctx, client, apiURL, apiKey, path, map[string]any{
			"file_name": fileName,
			"columns":   columns,
			"rows":      rows,
		}))
	}
}
