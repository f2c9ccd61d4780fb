package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TheClusterFlux/replay-hub/config"
	"github.com/TheClusterFlux/replay-hub/database"
	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/services"
)

const (
	methodGET  = "GET"
	methodPOST = "POST"
)

// Deps carries the constructed components into the HTTP layer.
type Deps struct {
	Cfg      config.Config
	Staging  *services.Staging
	Fetcher  *services.Fetcher
	Sessions *services.SessionManager
	Ingestor *services.Ingestor
	Videos   *models.VideoStore
	DB       *database.Database
}

// RegisterRoutes mounts every HTTP route on the provided mux router.
func RegisterRoutes(r *mux.Router, deps Deps) {
	r.HandleFunc("/health", healthHandler()).Methods(methodGET)

	r.HandleFunc("/upload", uploadHandler(deps)).Methods(methodPOST)

	r.HandleFunc("/upload/chunk/init", chunkInitHandler(deps)).Methods(methodPOST)
	r.HandleFunc("/upload/chunk/{sessionId}/status", chunkStatusHandler(deps)).Methods(methodGET)
	r.HandleFunc("/upload/chunk/{sessionId}/finalize", chunkFinalizeHandler(deps)).Methods(methodPOST)
	r.HandleFunc("/upload/chunk/{sessionId}/{index:[0-9]+}", chunkPutHandler(deps)).Methods(methodPOST)

	r.HandleFunc("/metadata", metadataHandler(deps)).Methods(methodGET)
	r.HandleFunc("/videos/{id}", getVideoHandler(deps)).Methods(methodGET)
	r.HandleFunc("/videos/{id}/{action}", counterHandler(deps)).Methods(methodPOST)
	r.HandleFunc("/thumbnail/{id}", thumbnailHandler(deps)).Methods(methodGET)

	// Locally-retained assets are served straight off the upload directory
	// until the reaper takes them.
	r.PathPrefix("/files/").Handler(
		http.StripPrefix("/files/", http.FileServer(http.Dir(deps.Cfg.UploadDir))),
	).Methods(methodGET)
}
