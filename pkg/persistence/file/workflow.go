package file

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// WorkflowRepository stores workflow definitions as JSON documents.
type WorkflowRepository struct {
	dir string
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{dir: filepath.Join(root, "workflows")}
}

func (r *WorkflowRepository) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := readDocument(r.dir, id, &workflow, persistence.ErrWorkflowNotFound); err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) WorkflowByFunctionName(ctx context.Context, name string) (*models.Workflow, error) {
	workflows, err := r.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if workflow.FunctionName == name {
			return workflow, nil
		}
	}

	return nil, persistence.ErrWorkflowNotFound
}

func (r *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeDocument(r.dir, workflow.ID, workflow)
}

func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := listDocumentIDs(r.dir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.WorkflowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
