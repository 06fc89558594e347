package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/types"
)

// WorkflowClient is the part of client.Client the admin routes use.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID string, runID string) client.WorkflowRun
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

type WorkflowHandler struct {
	temporal  WorkflowClient
	taskQueue string
	log       *zap.Logger
}

func NewWorkflowHandler(c WorkflowClient, taskQueue string, log *zap.Logger) *WorkflowHandler {
	if taskQueue == "" {
		taskQueue = "lifedb"
	}
	return &WorkflowHandler{temporal: c, taskQueue: taskQueue, log: log}
}

type StartWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (h *WorkflowHandler) available(c *gin.Context) bool {
	if h.temporal == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "workflows unavailable"})
		return false
	}
	return true
}

// StartGraphRebuild starts GraphRebuildWorkflow. The body is optional.
func (h *WorkflowHandler) StartGraphRebuild(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var params types.GraphRebuildParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	h.start(c, "graph-rebuild-", "GraphRebuildWorkflow", params)
}

func (h *WorkflowHandler) StartImportJob(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var req struct {
		FileURI string `json:"file_uri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	uri := strings.TrimSpace(req.FileURI)
	if !strings.HasPrefix(uri, "file://") && !strings.HasPrefix(uri, "s3://") && !strings.HasPrefix(uri, "/") {
		badRequest(c, "file_uri must be file://, s3:// or an absolute path")
		return
	}
	h.start(c, "import-", "ImportItemsWorkflow", types.ImportItemsParams{FileURI: uri})
}

func (h *WorkflowHandler) start(c *gin.Context, idPrefix, workflowName string, params interface{}) {
	options := client.StartWorkflowOptions{
		ID:        idPrefix + uuid.NewString(),
		TaskQueue: h.taskQueue,
	}
	run, err := h.temporal.ExecuteWorkflow(c.Request.Context(), options, workflowName, params)
	if err != nil {
		h.log.Error("start workflow failed", zap.String("workflow", workflowName), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "failed to start workflow: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, StartWorkflowResponse{WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

// GetWorkflowStatus reports a workflow's status, with its result once completed.
func (h *WorkflowHandler) GetWorkflowStatus(c *gin.Context) {
	if !h.available(c) {
		return
	}
	workflowID := c.Param("id")
	ctx := c.Request.Context()

	describe, err := h.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workflow not found: " + err.Error()})
		return
	}
	info := describe.GetWorkflowExecutionInfo()
	status := info.GetStatus()
	resp := gin.H{
		"workflow_id": workflowID,
		"status":      status.String(),
		"start_time":  info.GetStartTime().AsTime(),
	}
	if status == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED {
		var result map[string]interface{}
		if err := h.temporal.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
			resp["error"] = err.Error()
		} else {
			resp["result"] = result
		}
	}
	c.JSON(http.StatusOK, resp)
}
