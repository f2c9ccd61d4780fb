package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/TheClusterFlux/replay-hub/types"
)

func writeJSONResponse(rw http.ResponseWriter, code int, result interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	json.NewEncoder(rw).Encode(result)
}

type ErrorJsonBody struct {
	Message string `json:"message"`
}

type ErrorJson struct {
	Error ErrorJsonBody `json:"error"`
}

func newErrorJson(message string) ErrorJson {
	return ErrorJson{
		Error: ErrorJsonBody{
			Message: message,
		},
	}
}

func writeErrorResponse(rw http.ResponseWriter, code int, err error) {
	writeJSONResponse(rw, code, newErrorJson(err.Error()))
}

// writeError maps the pipeline error taxonomy onto HTTP statuses. Protocol
// violations are the caller's fault; everything else that escapes this far
// is a server-side failure.
func writeError(rw http.ResponseWriter, err error) {
	writeErrorResponse(rw, statusForError(err), err)
}

func statusForError(err error) int {
	var invalid *types.InvalidArgumentError
	var incomplete *types.IncompleteUploadError
	var missing *types.MissingChunkError

	switch {
	case errors.As(err, &invalid), errors.As(err, &incomplete), errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrSessionNotFound), errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
