package domain

import "strings"

// Campos usados pela cascata de exclusão de workflow.
const (
	FieldWorkflowID = "workflow_id"
	FieldStage      = "stage"
	FieldStages     = "stages"
	FieldName       = "name"
)

// DeleteMode define o destino das atividades de um workflow excluído.
type DeleteMode string

const (
	// DeleteModeDeleteAll remove todas as atividades do workflow.
	DeleteModeDeleteAll DeleteMode = "delete_all"
	// DeleteModeMove move as atividades para outro workflow/estágio.
	DeleteModeMove DeleteMode = "move"
)

func (m DeleteMode) IsValid() bool {
	return m == DeleteModeDeleteAll || m == DeleteModeMove
}

// DeleteWorkflowRequest DTO para POST /v1/workflows/{workflowId}/:delete.
type DeleteWorkflowRequest struct {
	DeleteMode       DeleteMode `json:"deleteMode" validate:"required,oneof=delete_all move"`
	TargetWorkflowID string     `json:"targetWorkflowId,omitempty" validate:"required_if=DeleteMode move"`
	TargetStage      string     `json:"targetStage,omitempty" validate:"required_if=DeleteMode move"`
}

// Normalize trims the target fields.
func (r *DeleteWorkflowRequest) Normalize() {
	r.TargetWorkflowID = strings.TrimSpace(r.TargetWorkflowID)
	r.TargetStage = strings.TrimSpace(r.TargetStage)
}

// FailedMutation registra uma atividade cuja mutação falhou.
type FailedMutation struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// CascadeResult é o resultado estruturado (sucesso parcial) da cascata.
type CascadeResult struct {
	WorkflowID       string           `json:"workflowId"`
	Mode             DeleteMode       `json:"deleteMode"`
	TargetWorkflowID string           `json:"targetWorkflowId,omitempty"`
	TargetStage      string           `json:"targetStage,omitempty"`
	Succeeded        []string         `json:"succeeded"`
	Failed           []FailedMutation `json:"failed"`
	WorkflowDeleted  bool             `json:"workflowDeleted"`
	WorkflowError    string           `json:"workflowError,omitempty"`
}

// Complete reports whether every activity mutation and the workflow deletion succeeded.
func (r *CascadeResult) Complete() bool {
	return len(r.Failed) == 0 && r.WorkflowDeleted
}

// WorkflowStages extracts stage names from a Workflow record. Stages may be
// stored as plain strings or as objects with a "name" key.
func WorkflowStages(r *Record) []string {
	if r == nil || r.Data == nil {
		return nil
	}
	raw, ok := r.Data[FieldStages].([]any)
	if !ok {
		return r.Strings(FieldStages)
	}
	stages := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			stages = append(stages, v)
		case map[string]any:
			if name, ok := v[FieldName].(string); ok {
				stages = append(stages, name)
			}
		}
	}
	return stages
}
