package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/pipeline"
	"github.com/yourorg/lifedb/internal/transfer"
)

type Handler struct {
	p   *pipeline.Pipeline
	log *zap.Logger
}

func NewHandler(p *pipeline.Pipeline, log *zap.Logger) *Handler {
	return &Handler{p: p, log: log}
}

func (h *Handler) Health(c *gin.Context) {
	st, err := h.p.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                   true,
		"items":                st.Items,
		"tags":                 st.Tags,
		"categories":           st.Categories,
		"last_item_created_at": st.LastCreatedAt,
	})
}

func (h *Handler) ListCategories(c *gin.Context) {
	names, err := h.p.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": names})
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := h.p.EnsureCategory(c.Request.Context(), name); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": name})
}

func (h *Handler) RenameCategory(c *gin.Context) {
	var req struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, to := strings.TrimSpace(req.Old), strings.TrimSpace(req.New)
	if err := h.p.RenameCategory(c.Request.Context(), from, to); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "renamed": gin.H{"from": from, "to": to}})
}

func (h *Handler) MergeTags(c *gin.Context) {
	var req struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	src, dst := strings.TrimSpace(req.Src), strings.TrimSpace(req.Dst)
	if err := h.p.MergeTags(c.Request.Context(), src, dst); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "merged": gin.H{"from": src, "to": dst}})
}

func (h *Handler) Capture(c *gin.Context) {
	var req struct {
		URL      string `json:"url" binding:"required"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.p.Capture(c.Request.Context(), req.URL, req.Category)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

func (h *Handler) ListItems(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset")
	if !ok {
		return
	}
	items, err := h.p.ListItems(c.Request.Context(), domain.ItemFilter{
		Query:    c.Query("q"),
		Domain:   c.Query("domain"),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ItemMeta(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	view, err := h.p.ItemMeta(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) SetItemTags(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tags, err := h.p.SetItemTags(c.Request.Context(), id, req.Tags)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tags": tags})
}

func (h *Handler) ListTags(c *gin.Context) {
	names, err := h.p.ListTags(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": names})
}

// Export renders the whole body before answering so a store failure still
// produces a clean error response.
func (h *Handler) Export(c *gin.Context) {
	format, err := transfer.NormalizeFormat(c.DefaultQuery("fmt", transfer.FormatJSON))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.p.Export(c.Request.Context(), &buf, format, limit); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, transfer.ContentType(format), buf.Bytes())
}

func (h *Handler) Graph(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	g, err := h.p.ProjectedGraph(c.Request.Context(), domain.GraphFilter{
		Tag:      c.Query("tag"),
		Domain:   c.Query("domain"),
		Category: c.Query("category"),
		Limit:    limit,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// intQuery reads an optional non-negative integer query parameter; absent means 0.
func intQuery(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return n, true
}
