package service

import (
	"context"
	"errors"
	"fmt"

	"crm-api/internal/domain"
	"crm-api/internal/entity"
	"crm-api/internal/events"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/repo"

	"go.uber.org/zap"
)

const defaultCascadeBatch = domain.MaxListLimit

var errNotOwner = errors.New("activity belongs to another user")

// WorkflowService runs the workflow deletion cascade: dispose of every
// activity in the workflow, then delete the workflow itself.
type WorkflowService struct {
	store     entity.Client
	publisher events.Publisher
	audit     AuditLogger
	log       *logger.Logger
	batchSize int
}

func NewWorkflowService(store entity.Client, publisher events.Publisher, audit AuditLogger, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		store:     store,
		publisher: publisher,
		audit:     audit,
		log:       log,
		batchSize: defaultCascadeBatch,
	}
}

// validateCascade runs before anything touches the store.
func validateCascade(workflowID string, req domain.DeleteWorkflowRequest) error {
	fields := map[string]string{}
	if workflowID == "" {
		fields["workflowId"] = "is required"
	}
	switch req.DeleteMode {
	case domain.DeleteModeDeleteAll:
	case domain.DeleteModeMove:
		if req.TargetWorkflowID == "" {
			fields["targetWorkflowId"] = "is required"
		}
		if req.TargetStage == "" {
			fields["targetStage"] = "is required"
		}
		if req.TargetWorkflowID != "" && req.TargetWorkflowID == workflowID {
			fields["targetWorkflowId"] = "must differ from the workflow being deleted"
		}
	default:
		fields["deleteMode"] = "must be one of: delete_all move"
	}
	if len(fields) > 0 {
		return newValidationError(ErrInvalidCascade, "invalid workflow deletion request", fields)
	}
	return nil
}

// DeleteWorkflow disposes of the workflow's activities (delete or move) and
// then deletes the workflow. Every activity is attempted; failures are
// collected instead of aborting. The workflow is kept when any activity
// failed so none is left pointing at a missing workflow. A partial result is
// not an error: callers inspect CascadeResult.Complete.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, sess *permission.Session, workflowID string, req domain.DeleteWorkflowRequest) (*domain.CascadeResult, error) {
	req.Normalize()
	if err := validateCascade(workflowID, req); err != nil {
		return nil, err
	}

	activityAction := domain.ActionDelete
	if req.DeleteMode == domain.DeleteModeMove {
		activityAction = domain.ActionEdit
	}
	if err := authorize(sess, domain.ResourceCRM, domain.ActionDelete); err != nil {
		return nil, err
	}
	if err := authorize(sess, domain.ResourceActivities, activityAction); err != nil {
		return nil, err
	}

	owner := ownerFilter(sess, domain.ResourceCRM)
	wf, err := s.store.Get(ctx, domain.EntityWorkflow, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	if owner != nil && !ownedBy(wf, *owner) {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, ErrNotFound)
	}
	if req.DeleteMode == domain.DeleteModeMove {
		target, err := s.store.Get(ctx, domain.EntityWorkflow, req.TargetWorkflowID)
		if err != nil {
			return nil, fmt.Errorf("get target workflow %s: %w", req.TargetWorkflowID, err)
		}
		if owner != nil && !ownedBy(target, *owner) {
			return nil, fmt.Errorf("get target workflow %s: %w", req.TargetWorkflowID, ErrNotFound)
		}
		if stages := domain.WorkflowStages(target); len(stages) > 0 && !contains(stages, req.TargetStage) {
			return nil, newValidationError(ErrInvalidCascade, "invalid workflow deletion request", map[string]string{
				"targetStage": "is not a stage of the target workflow",
			})
		}
	}

	result := &domain.CascadeResult{
		WorkflowID:       workflowID,
		Mode:             req.DeleteMode,
		TargetWorkflowID: req.TargetWorkflowID,
		TargetStage:      req.TargetStage,
		Succeeded:        []string{},
		Failed:           []domain.FailedMutation{},
	}

	if err := s.disposeActivities(ctx, workflowID, req, ownerFilter(sess, domain.ResourceActivities), result); err != nil {
		return nil, err
	}

	if len(result.Failed) == 0 {
		if err := s.store.Delete(ctx, domain.EntityWorkflow, workflowID); err != nil {
			result.WorkflowError = err.Error()
		} else {
			result.WorkflowDeleted = true
		}
	} else {
		result.WorkflowError = "workflow kept: some activities could not be processed"
	}

	s.report(ctx, sess, result)
	return result, nil
}

// disposeActivities re-queries in batches until no unseen activity is left.
// Rows that stay in the workflow (failed or skipped) are paged past with an
// offset; the listing is ordered by (created_at, id), so they always sort
// ahead of the unseen ones. Under personal scope, activities owned by someone
// else are reported as failed and left untouched.
// A failed listing before any mutation is returned as an error; after that it
// is recorded on the result so completed work is still reported.
func (s *WorkflowService) disposeActivities(ctx context.Context, workflowID string, req domain.DeleteWorkflowRequest, owner *string, result *domain.CascadeResult) error {
	seen := map[string]bool{}
	remaining := 0
	predicate := map[string]any{domain.FieldWorkflowID: workflowID}

	for {
		batch, err := s.store.Filter(ctx, domain.EntityActivity, predicate, domain.ListOptions{
			Limit:  s.batchSize,
			Offset: remaining,
			Sort:   "created_date",
		})
		if err != nil {
			if len(seen) == 0 {
				return fmt.Errorf("list workflow activities: %w", err)
			}
			result.Failed = append(result.Failed, domain.FailedMutation{ID: "*", Error: "list activities: " + err.Error()})
			return nil
		}

		fresh := 0
		for i := range batch {
			act := &batch[i]
			if seen[act.ID] {
				continue
			}
			seen[act.ID] = true
			fresh++

			if owner != nil && !ownedBy(act, *owner) {
				remaining++
				result.Failed = append(result.Failed, domain.FailedMutation{ID: act.ID, Error: errNotOwner.Error()})
				continue
			}
			if err := s.mutate(ctx, act.ID, req); err != nil {
				s.log.Warn(ctx, "activity mutation failed",
					logger.Module("workflow"),
					logger.Action("cascade"),
					zap.String("workflow_id", workflowID),
					zap.String("activity_id", act.ID),
					zap.Error(err),
				)
				remaining++
				result.Failed = append(result.Failed, domain.FailedMutation{ID: act.ID, Error: err.Error()})
				continue
			}
			result.Succeeded = append(result.Succeeded, act.ID)
		}

		if fresh == 0 || len(batch) < s.batchSize {
			return nil
		}
	}
}

func (s *WorkflowService) mutate(ctx context.Context, activityID string, req domain.DeleteWorkflowRequest) error {
	if req.DeleteMode == domain.DeleteModeMove {
		_, err := s.store.Update(ctx, domain.EntityActivity, activityID, map[string]any{
			domain.FieldWorkflowID: req.TargetWorkflowID,
			domain.FieldStage:      req.TargetStage,
		})
		return err
	}
	return s.store.Delete(ctx, domain.EntityActivity, activityID)
}

func (s *WorkflowService) report(ctx context.Context, sess *permission.Session, result *domain.CascadeResult) {
	eventType := events.TypeWorkflowDeleted
	logFn := s.log.Info
	if !result.Complete() {
		eventType = events.TypeWorkflowCascadePartial
		logFn = s.log.Warn
	}

	logFn(ctx, "workflow cascade finished",
		logger.Module("workflow"),
		logger.Action("cascade"),
		zap.String("workflow_id", result.WorkflowID),
		zap.String("delete_mode", string(result.Mode)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Bool("workflow_deleted", result.WorkflowDeleted),
	)

	meta := map[string]any{
		"delete_mode":      string(result.Mode),
		"succeeded":        len(result.Succeeded),
		"failed":           len(result.Failed),
		"workflow_deleted": result.WorkflowDeleted,
	}
	if result.TargetWorkflowID != "" {
		meta["target_workflow_id"] = result.TargetWorkflowID
		meta["target_stage"] = result.TargetStage
	}

	publish(ctx, s.publisher, s.log, "workflow",
		events.New(eventType, string(domain.EntityWorkflow), result.WorkflowID, sess.UserID(), meta))

	id := result.WorkflowID
	writeAudit(ctx, s.audit, s.log, "workflow", repo.AuditEntry{
		ActorID:      sess.UserID(),
		Action:       "workflow.delete",
		ResourceType: string(domain.EntityWorkflow),
		ResourceID:   &id,
		Metadata:     meta,
	})
}
