package notify

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/quillsign/quillsign/internal/models"
)

// WorkflowConfig locates the delivery workflow to execute.
type WorkflowConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
}

// Workflow triggers a Cloud Workflows execution per hand-off. The workflow
// owns the actual delivery (emailing signing links, distributing the signed
// copy).
type Workflow struct {
	client *executions.Client
	config WorkflowConfig
}

func NewWorkflow(client *executions.Client, config WorkflowConfig) *Workflow {
	return &Workflow{client: client, config: config}
}

func (w *Workflow) DocumentSent(ctx context.Context, doc models.Document, links []models.SigningLink) error {
	return w.execute(ctx, map[string]interface{}{
		"event":      "document.sent",
		"documentId": doc.ID,
		"filename":   doc.Filename,
		"links":      links,
	})
}

func (w *Workflow) DocumentCompleted(ctx context.Context, doc models.Document) error {
	return w.execute(ctx, map[string]interface{}{
		"event":      "document.completed",
		"documentId": doc.ID,
		"filename":   doc.Filename,
	})
}

func (w *Workflow) execute(ctx context.Context, payload map[string]interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			w.config.ProjectID, w.config.WorkflowLocation, w.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := w.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger delivery workflow: %w", err)
	}
	return nil
}
