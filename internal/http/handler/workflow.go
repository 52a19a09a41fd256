package handler

import (
	"net/http"

	"crm-api/internal/domain"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type WorkflowHandler struct {
	service *service.WorkflowService
}

func NewWorkflowHandler(service *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// DeleteWorkflow handles POST /v1/workflows/{workflowId}/:delete
//
// 200 when every step succeeded, 207 when the result lists failures. Both
// carry the CascadeResult.
func (h *WorkflowHandler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	var req domain.DeleteWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.DeleteWorkflow(ctx, sess, chi.URLParam(r, "workflowId"), req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	status := http.StatusOK
	if !result.Complete() {
		status = http.StatusMultiStatus
		logger.GetLogger(ctx).Warn(ctx, "workflow cascade finished with failures",
			logger.Module("http"),
			logger.Action("delete_workflow"),
			zap.String("workflow_id", result.WorkflowID),
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)),
		)
	}
	writeOK(w, status, result)
}
