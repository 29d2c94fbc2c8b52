package handler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/browserkit/export"
	"github.com/use-agent/browserkit/helper"
	"github.com/use-agent/browserkit/models"
)

// Navigate returns a handler for POST /api/v1/navigate.
func Navigate(sess *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.NavigateRequest
		if !bind(c, &req, start) {
			return
		}

		err := sess.Do(c.Request.Context(), func(h *helper.Helper) error {
			return h.GoTo(c.Request.Context(), req.URL)
		})
		if err != nil {
			respondError(c, err, start)
			return
		}
		respondOK(c, models.NavigateResult{URL: req.URL}, start)
	}
}

// NavigateByHref returns a handler for POST /api/v1/navigate/href.
func NavigateByHref(sess *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.NavigateByHrefRequest
		if !bind(c, &req, start) {
			return
		}

		var target string
		err := sess.Do(c.Request.Context(), func(h *helper.Helper) error {
			ctx := c.Request.Context()
			href, err := h.HrefOf(ctx, req.Selector)
			if err != nil {
				return err
			}
			target = href
			return h.GoTo(ctx, href)
		})
		if err != nil {
			respondError(c, err, start)
			return
		}
		respondOK(c, models.NavigateResult{URL: target}, start)
	}
}

// Wait returns a handler for POST /api/v1/wait.
func Wait(sess *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.WaitRequest
		if !bind(c, &req, start) {
			return
		}

		result := models.WaitResult{Selector: req.Selector}
		err := sess.Do(c.Request.Context(), func(h *helper.Helper) error {
			ctx := c.Request.Context()
			els, err := h.WaitForElementsByCSSSelector(ctx, req.Selector, time.Duration(req.WaitSeconds)*time.Second)
			if err != nil {
				return err
			}
			result.Count = len(els)
			result.Elements = make([]models.ElementInfo, 0, len(els))
			for _, el := range els {
				text, err := el.Text(ctx)
				if err != nil {
					return err
				}
				href, _, err := el.Attribute(ctx, "href")
				if err != nil {
					return err
				}
				result.Elements = append(result.Elements, models.ElementInfo{Text: text, Href: href})
			}
			return nil
		})
		if err != nil {
			respondError(c, err, start)
			return
		}
		respondOK(c, result, start)
	}
}

// ExportCSV returns a handler for POST /api/v1/export/csv. Files are written
// under dir; the requested name must not contain a path.
func ExportCSV(sess *Session, dir string) gin.HandlerFunc {
	return exportHandler(dir, func(ctx context.Context, rows []export.Row, columns []string, path string) error {
		return sess.Do(ctx, func(h *helper.Helper) error {
			return h.WriteToCSV(ctx, rows, columns, path)
		})
	})
}

// ExportXLSX returns a handler for POST /api/v1/export/xlsx. It never touches
// the browser, so it does not queue behind the session.
func ExportXLSX(dir string) gin.HandlerFunc {
	return exportHandler(dir, func(_ context.Context, rows []export.Row, columns []string, path string) error {
		if err := export.WriteXLSX(path, rows, columns); err != nil {
			if errors.Is(err, export.ErrSchemaMismatch) {
				return models.NewHelperError(models.ErrCodeSchemaMismatch, err.Error(), err)
			}
			return models.NewHelperError(models.ErrCodeIO, "failed to write workbook", err)
		}
		return nil
	})
}

type writeFunc func(ctx context.Context, rows []export.Row, columns []string, path string) error

func exportHandler(dir string, write writeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ExportRequest
		if !bind(c, &req, start) {
			return
		}
		if !isBareFileName(req.FileName) {
			respondError(c, models.NewHelperError(models.ErrCodeInvalidInput,
				"file_name must be a bare file name without directories", nil), start)
			return
		}

		rows := make([]export.Row, len(req.Rows))
		for i, r := range req.Rows {
			rows[i] = export.Row(r)
		}

		if err := write(c.Request.Context(), rows, req.Columns, filepath.Join(dir, req.FileName)); err != nil {
			respondError(c, err, start)
			return
		}
		respondOK(c, models.ExportResult{FileName: req.FileName, Rows: len(rows)}, start)
	}
}

func isBareFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
