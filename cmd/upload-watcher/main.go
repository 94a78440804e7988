package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/quillsign/quillsign/internal/blob"
	"github.com/quillsign/quillsign/internal/coordinator"
	"github.com/quillsign/quillsign/internal/gcp"
	"github.com/quillsign/quillsign/internal/notify"
	"github.com/quillsign/quillsign/internal/service"
	"github.com/quillsign/quillsign/internal/store"
)

// GCSEvent is the payload of a GCS object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

var (
	docs    *service.Documents
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework routes the event here.
	functions.CloudEvent("OnDocumentUpload", onDocumentUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// onDocumentUpload registers PDFs dropped directly into the uploads prefix of
// the artifact bucket as draft documents. Signature and finalized objects
// written by the coordinator land under other prefixes and are ignored.
func onDocumentUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		docs, initErr = newService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)
	if !strings.HasPrefix(gcsEvent.Name, "uploads/") {
		logCtx.Info("Object outside uploads prefix, ignoring.")
		return nil
	}

	ownerID := gcp.GetEnv("UPLOAD_OWNER_ID", "uploads-inbox")
	doc, err := docs.RegisterUploaded(ctx, ownerID, path.Base(gcsEvent.Name), gcsEvent.Name)
	if err != nil {
		logCtx.Error("Failed to register uploaded object", "error", err)
		return err
	}
	logCtx.Info("Draft registered for uploaded object.", "documentId", doc.ID)
	return nil
}

func newService(ctx context.Context) (*service.Documents, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("ARTIFACT_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("ARTIFACT_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	records := store.NewFirestore(firestoreClient)
	blobs := blob.NewGCS(storageClient, bucket)
	coord := coordinator.New(records, blobs, notify.Nop{}, coordinator.Config{
		SigningBaseURL: gcp.GetEnv("SIGNING_BASE_URL", "http://localhost:8000"),
	})
	slog.Info("Upload watcher initialized.")
	return service.NewDocuments(records, blobs, coord), nil
}
