package models

// NavigateRequest is the payload for POST /api/v1/navigate.
type NavigateRequest struct {
	// URL is the page to load. Required.
	URL string `json:"url" binding:"required,url"`
}

// NavigateByHrefRequest is the payload for POST /api/v1/navigate/href.
type NavigateByHrefRequest struct {
	// Selector must match exactly one anchor on the current page.
	Selector string `json:"selector" binding:"required"`
}

// WaitRequest is the payload for POST /api/v1/wait.
type WaitRequest struct {
	// Selector is the CSS selector to wait for. Required.
	Selector string `json:"selector" binding:"required"`

	// WaitSeconds is the maximum time to wait.
	// Default: the server's configured wait timeout. Max: 120.
	WaitSeconds int `json:"wait_seconds,omitempty" binding:"omitempty,min=1,max=120"`
}

// ExportRequest is the payload for POST /api/v1/export/csv and
// POST /api/v1/export/xlsx.
type ExportRequest struct {
	// FileName is a bare file name written under the export directory.
	FileName string `json:"file_name" binding:"required"`

	// Columns is the header row and the field order of every row.
	Columns []string `json:"columns" binding:"required,min=1"`

	// Rows must each carry exactly the keys listed in Columns.
	Rows []map[string]any `json:"rows"`
}
