package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/quillsign/quillsign/internal/blob"
	"github.com/quillsign/quillsign/internal/coordinator"
	"github.com/quillsign/quillsign/internal/gcp"
	"github.com/quillsign/quillsign/internal/notify"
	"github.com/quillsign/quillsign/internal/server"
	"github.com/quillsign/quillsign/internal/service"
	"github.com/quillsign/quillsign/internal/store"
)

var (
	srv     *server.Server
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("QuillSign", handle)
}

func main() {
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

// handle lazily initializes clients on the first request, then dispatches to
// the route table.
func handle(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		srv, initErr = newServer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during initialization", "error", initErr)
		http.Error(w, "initialization failed", http.StatusInternalServerError)
		return
	}
	srv.Handler().ServeHTTP(w, r)
}

// newServer wires the record store, artifact store and delivery hand-off.
// With no PROJECT_ID set it runs fully local: in-memory records, filesystem
// artifacts, no delivery hand-off.
func newServer(ctx context.Context) (*server.Server, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	coordConfig := coordinator.Config{
		SigningBaseURL: gcp.GetEnv("SIGNING_BASE_URL", "http://localhost:8000"),
	}

	var (
		records      store.RecordStore
		blobs        blob.Store
		notifier     notify.Notifier = notify.Nop{}
		defaultOwner string
	)

	if projectID == "" {
		slog.Info("PROJECT_ID not set, running in local mode.")
		defaultOwner = "local"
		fsStore, err := blob.NewFS(gcp.GetEnv("BLOB_DIR", "data"))
		if err != nil {
			return nil, err
		}
		records = store.NewMemory()
		blobs = fsStore
	} else {
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
		records = store.NewFirestore(firestoreClient)
		blobs = blob.NewGCS(storageClient, bucket)

		if workflowID := gcp.GetEnv("DELIVERY_WORKFLOW_ID", ""); workflowID != "" {
			executionsClient, err := gcp.NewExecutionsClient(ctx)
			if err != nil {
				return nil, err
			}
			notifier = notify.NewWorkflow(executionsClient, notify.WorkflowConfig{
				ProjectID:        projectID,
				WorkflowID:       workflowID,
				WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
			})
		}
	}

	coord := coordinator.New(records, blobs, notifier, coordConfig)
	docs := service.NewDocuments(records, blobs, coord)
	slog.Info("Signing service initialized.", "local", projectID == "")
	return server.New(docs, coord, defaultOwner), nil
}
