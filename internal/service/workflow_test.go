package service_test

import (
	"context"
	"errors"
	"testing"

	"crm-api/internal/domain"
	"crm-api/internal/events"
	"crm-api/internal/mocks"
	"crm-api/internal/observability/logger"
	"crm-api/internal/repo"
	"crm-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type workflowFixture struct {
	store     *mocks.MockClient
	audit     *mocks.MockAuditLogger
	publisher *events.Recorder
	svc       *service.WorkflowService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	ctrl := gomock.NewController(t)
	f := &workflowFixture{
		store:     mocks.NewMockClient(ctrl),
		audit:     mocks.NewMockAuditLogger(ctrl),
		publisher: &events.Recorder{},
	}
	f.svc = service.NewWorkflowService(f.store, f.publisher, f.audit, logger.NewNop())
	return f
}

func cascadeSession() map[domain.Resource]domain.Grant {
	return map[domain.Resource]domain.Grant{
		domain.ResourceCRM:        grant(domain.ScopeTotal, domain.PermissionFull),
		domain.ResourceActivities: grant(domain.ScopeTotal, domain.PermissionFull),
	}
}

func activities(ids ...string) []domain.Record {
	out := make([]domain.Record, len(ids))
	for i, id := range ids {
		out[i] = domain.Record{ID: id, EntityType: domain.EntityActivity, Data: map[string]any{"workflow_id": "wf-1"}}
	}
	return out
}

func TestDeleteWorkflow_InvalidRequestsTouchNothing(t *testing.T) {
	tests := []struct {
		name       string
		workflowID string
		req        domain.DeleteWorkflowRequest
		field      string
	}{
		{
			name:       "move without target workflow",
			workflowID: "wf-1",
			req:        domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetStage: "Novo"},
			field:      "targetWorkflowId",
		},
		{
			name:       "move without target stage",
			workflowID: "wf-1",
			req:        domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetWorkflowID: "wf-2", TargetStage: "   "},
			field:      "targetStage",
		},
		{
			name:       "move onto itself",
			workflowID: "wf-1",
			req:        domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetWorkflowID: "wf-1", TargetStage: "Novo"},
			field:      "targetWorkflowId",
		},
		{
			name:       "unknown mode",
			workflowID: "wf-1",
			req:        domain.DeleteWorkflowRequest{DeleteMode: "archive"},
			field:      "deleteMode",
		},
		{
			name:  "missing workflow id",
			req:   domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll},
			field: "workflowId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no expectations: any store call fails the test
			f := newWorkflowFixture(t)

			result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), tt.workflowID, tt.req)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, service.ErrInvalidCascade)
			requireFieldError(t, err, tt.field)
			assert.Empty(t, f.publisher.Events())
		})
	}
}

func TestDeleteWorkflow_RequiresPermissions(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	_, err := f.svc.DeleteWorkflow(ctx, nil, "wf-1", domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	noCRMDelete := newSession("u1", map[domain.Resource]domain.Grant{
		domain.ResourceCRM:        grant(domain.ScopeTotal, domain.PermissionEditCreateView),
		domain.ResourceActivities: grant(domain.ScopeTotal, domain.PermissionFull),
	})
	_, err = f.svc.DeleteWorkflow(ctx, noCRMDelete, "wf-1", domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.ErrorIs(t, err, service.ErrForbidden)

	// move needs activities:edit, delete_all needs activities:delete
	activitiesEdit := newSession("u1", map[domain.Resource]domain.Grant{
		domain.ResourceCRM:        grant(domain.ScopeTotal, domain.PermissionFull),
		domain.ResourceActivities: grant(domain.ScopeTotal, domain.PermissionEditCreateView),
	})
	_, err = f.svc.DeleteWorkflow(ctx, activitiesEdit, "wf-1", domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.ErrorIs(t, err, service.ErrForbidden)

	activitiesView := newSession("u1", map[domain.Resource]domain.Grant{
		domain.ResourceCRM:        grant(domain.ScopeTotal, domain.PermissionFull),
		domain.ResourceActivities: grant(domain.ScopeTotal, domain.PermissionView),
	})
	_, err = f.svc.DeleteWorkflow(ctx, activitiesView, "wf-1", domain.DeleteWorkflowRequest{
		DeleteMode: domain.DeleteModeMove, TargetWorkflowID: "wf-2", TargetStage: "Novo",
	})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestDeleteWorkflow_DeleteAll(t *testing.T) {
	f := newWorkflowFixture(t)

	gomock.InOrder(
		f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil),
		f.store.EXPECT().
			Filter(gomock.Any(), domain.EntityActivity, map[string]any{"workflow_id": "wf-1"}, gomock.Any()).
			Return(activities("a1", "a2"), nil),
		f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a1").Return(nil),
		f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a2").Return(nil),
		f.store.EXPECT().Delete(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(nil),
	)
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e repo.AuditEntry) error {
			assert.Equal(t, "workflow.delete", e.Action)
			assert.Equal(t, 2, e.Metadata["succeeded"])
			assert.Equal(t, true, e.Metadata["workflow_deleted"])
			return nil
		})

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Equal(t, []string{"a1", "a2"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.True(t, result.WorkflowDeleted)
	assert.Equal(t, []string{events.TypeWorkflowDeleted}, f.publisher.Types())
}

func TestDeleteWorkflow_EmptyWorkflow(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).Return(nil, nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(nil)
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.DeleteWorkflow(context.Background(), superSession("root"), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Empty(t, result.Succeeded)
}

func TestDeleteWorkflow_PartialFailureKeepsWorkflow(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).
		Return(activities("a1", "a2", "a3"), nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a1").Return(nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a2").Return(errors.New("connection reset"))
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a3").Return(nil)
	// no Delete(Workflow) expectation: the workflow must survive
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	require.NoError(t, err)
	assert.False(t, result.Complete())
	assert.False(t, result.WorkflowDeleted)
	assert.Equal(t, []string{"a1", "a3"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a2", result.Failed[0].ID)
	assert.Contains(t, result.Failed[0].Error, "connection reset")
	assert.NotEmpty(t, result.WorkflowError)
	assert.Equal(t, []string{events.TypeWorkflowCascadePartial}, f.publisher.Types())
}

func TestDeleteWorkflow_MoveActivities(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-2").Return(&domain.Record{
		ID: "wf-2",
		Data: map[string]any{"stages": []any{
			map[string]any{"name": "Novo"},
			map[string]any{"name": "Ganho"},
		}},
	}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).
		Return(activities("a1"), nil)
	f.store.EXPECT().
		Update(gomock.Any(), domain.EntityActivity, "a1", map[string]any{"workflow_id": "wf-2", "stage": "Ganho"}).
		Return(&domain.Record{ID: "a1"}, nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(nil)
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetWorkflowID: " wf-2 ", TargetStage: "Ganho"})
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Equal(t, "wf-2", result.TargetWorkflowID)
	assert.Equal(t, []string{"a1"}, result.Succeeded)

	evs := f.publisher.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "wf-2", evs[0].Payload["target_workflow_id"])
}

func TestDeleteWorkflow_MoveToUnknownStage(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-2").Return(&domain.Record{
		ID:   "wf-2",
		Data: map[string]any{"stages": []any{"Novo", "Ganho"}},
	}, nil)

	_, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetWorkflowID: "wf-2", TargetStage: "Perdido"})
	assert.ErrorIs(t, err, service.ErrInvalidCascade)
	requireFieldError(t, err, "targetStage")
}

func TestDeleteWorkflow_WorkflowNotFound(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-404").Return(nil, service.ErrNotFound)

	_, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-404",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func personalCascadeSession() map[domain.Resource]domain.Grant {
	return map[domain.Resource]domain.Grant{
		domain.ResourceCRM:        grant(domain.ScopePersonal, domain.PermissionFull),
		domain.ResourceActivities: grant(domain.ScopePersonal, domain.PermissionFull),
	}
}

func TestDeleteWorkflow_PersonalScopeHidesForeignWorkflow(t *testing.T) {
	f := newWorkflowFixture(t)
	other := "someone-else"

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1", CreatedBy: &other}, nil)
	// no Filter or Delete: nothing is touched

	_, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", personalCascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, f.publisher.Types())
}

func TestDeleteWorkflow_PersonalScopeHidesForeignTarget(t *testing.T) {
	f := newWorkflowFixture(t)
	mine, other := "u1", "someone-else"

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1", CreatedBy: &mine}, nil)
	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-2").Return(&domain.Record{ID: "wf-2", CreatedBy: &other}, nil)

	_, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", personalCascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeMove, TargetWorkflowID: "wf-2", TargetStage: "Novo"})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDeleteWorkflow_PersonalScopeKeepsWorkflowWithForeignActivities(t *testing.T) {
	f := newWorkflowFixture(t)
	mine, other := "u1", "someone-else"

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1", CreatedBy: &mine}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).
		Return([]domain.Record{{ID: "a1", CreatedBy: &mine}, {ID: "a2", CreatedBy: &other}}, nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a1").Return(nil)
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", personalCascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	require.NoError(t, err)
	assert.False(t, result.WorkflowDeleted)
	assert.Equal(t, []string{"a1"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a2", result.Failed[0].ID)
}

func TestDeleteWorkflow_ListFailureBeforeMutation(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("timeout"))

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "timeout")
	assert.Empty(t, f.publisher.Events())
}

func TestDeleteWorkflow_WorkflowDeleteFails(t *testing.T) {
	f := newWorkflowFixture(t)

	f.store.EXPECT().Get(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(&domain.Record{ID: "wf-1"}, nil)
	f.store.EXPECT().Filter(gomock.Any(), domain.EntityActivity, gomock.Any(), gomock.Any()).
		Return(activities("a1"), nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityActivity, "a1").Return(nil)
	f.store.EXPECT().Delete(gomock.Any(), domain.EntityWorkflow, "wf-1").Return(errors.New("lock timeout"))
	f.audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.DeleteWorkflow(context.Background(), newSession("u1", cascadeSession()), "wf-1",
		domain.DeleteWorkflowRequest{DeleteMode: domain.DeleteModeDeleteAll})
	require.NoError(t, err)
	assert.False(t, result.Complete())
	assert.Equal(t, []string{"a1"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "lock timeout", result.WorkflowError)
}
