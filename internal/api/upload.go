package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/pipeline"
	"github.com/yourorg/lifedb/internal/transfer"
)

const maxImportBody = 32 << 20

type UploadHandler struct {
	p   *pipeline.Pipeline
	log *zap.Logger
}

func NewUploadHandler(p *pipeline.Pipeline, log *zap.Logger) *UploadHandler {
	return &UploadHandler{p: p, log: log}
}

// Import accepts either a multipart "file" field (json, ndjson, csv, tsv,
// xlsx, xls) or a raw JSON array / NDJSON body.
func (h *UploadHandler) Import(c *gin.Context) {
	var (
		records []transfer.Record
		err     error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, "file upload error: "+ferr.Error())
			return
		}
		defer file.Close()
		records, err = transfer.ParseRecords(file, header.Filename)
	} else {
		body, rerr := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBody))
		if rerr != nil {
			badRequest(c, "read body: "+rerr.Error())
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			badRequest(c, "no data")
			return
		}
		records, err = transfer.ParseRecords(bytes.NewReader(body), "")
	}
	if err != nil {
		if errors.Is(err, transfer.ErrMalformed) {
			badRequest(c, err.Error())
			return
		}
		writeError(c, h.log, err)
		return
	}

	res, err := h.p.Import(c.Request.Context(), records)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "imported": res.Imported, "skipped": res.Skipped})
}
