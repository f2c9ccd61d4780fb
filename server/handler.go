package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/types"
)

const maxFormMemory = 32 << 20

type UploadResp struct {
	Message  string        `json:"message"`
	Metadata *models.Video `json:"metadata"`
}

// @Summary Upload a video file or source URL
// @Description Ingests a whole file (multipart "file") or fetches a source
// @Description URL (form "url"), normalizes it and persists the record.
// @Tags upload
// @Produce json
// @Success 201 {object} server.UploadResp
// @Failure 400 {object} server.ErrorJson "Error"
// @Router /upload [post]
func uploadHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeError(w, types.InvalidArgumentf("could not parse form: %v", err))
			return
		}

		var localPath string

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			localPath, err = deps.Staging.SaveMultipart(file, header)
			if err != nil {
				writeError(w, err)
				return
			}
		case r.FormValue("url") != "":
			localPath, err = deps.Fetcher.Download(r.Context(), r.FormValue("url"))
			if err != nil {
				writeError(w, err)
				return
			}
		default:
			writeError(w, types.InvalidArgumentf("request carries neither a file nor a source url"))
			return
		}

		fields := types.ParseUploadFields(r.MultipartForm.Value)
		identity := identityFromRequest(r, deps.Cfg.JWTSecret)

		video, err := deps.Ingestor.Ingest(r.Context(), localPath, fields, identity)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusCreated, UploadResp{
			Message:  "File uploaded successfully",
			Metadata: video,
		})
	}
}

type ChunkInitReq struct {
	SessionID   string            `json:"session_id"`
	Filename    string            `json:"filename"`
	TotalSize   int64             `json:"total_size"`
	TotalChunks int               `json:"total_chunks"`
	Fields      map[string]string `json:"fields,omitempty"`
}

type ChunkInitResp struct {
	SessionID   string `json:"session_id"`
	TotalChunks int    `json:"total_chunks"`
	Status      string `json:"status"`
}

// @Summary Initialize a chunked upload session
// @Tags upload
// @Produce json
// @Success 201 {object} server.ChunkInitResp
// @Failure 400 {object} server.ErrorJson "Error"
// @Router /upload/chunk/init [post]
func chunkInitHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChunkInitReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, types.InvalidArgumentf("could not decode request: %v", err))
			return
		}

		form := make(map[string][]string, len(req.Fields))
		for k, v := range req.Fields {
			form[k] = []string{v}
		}

		session, err := deps.Sessions.Init(req.SessionID, req.Filename, req.TotalSize, req.TotalChunks, types.ParseUploadFields(form))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusCreated, ChunkInitResp{
			SessionID:   session.SessionID,
			TotalChunks: session.TotalChunks,
			Status:      string(session.Status),
		})
	}
}

type ChunkResp struct {
	SessionID      string `json:"session_id"`
	Index          int    `json:"index"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

// @Summary Submit one chunk of a session
// @Tags upload
// @Produce json
// @Success 200 {object} server.ChunkResp
// @Failure 404 {object} server.ErrorJson "Unknown session"
// @Router /upload/chunk/{sessionId}/{index} [post]
func chunkPutHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		sessionID := vars["sessionId"]

		index, err := strconv.Atoi(vars["index"])
		if err != nil {
			writeError(w, types.InvalidArgumentf("bad chunk index %q", vars["index"]))
			return
		}

		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeError(w, types.InvalidArgumentf("could not parse form: %v", err))
			return
		}

		file, _, err := r.FormFile("chunk")
		if err != nil {
			writeError(w, types.InvalidArgumentf("chunk field is required"))
			return
		}
		defer file.Close()

		received, err := deps.Sessions.PutChunk(sessionID, index, file)
		if err != nil {
			writeError(w, err)
			return
		}

		session, err := deps.Sessions.Get(sessionID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, ChunkResp{
			SessionID:      sessionID,
			Index:          index,
			ChunksReceived: received,
			TotalChunks:    session.TotalChunks,
			Complete:       received == session.TotalChunks,
		})
	}
}

// @Summary Finalize a chunked upload
// @Description Assembles the received chunks and runs the full ingestion
// @Description pipeline on the result.
// @Tags upload
// @Produce json
// @Success 201 {object} server.UploadResp
// @Failure 400 {object} server.ErrorJson "Incomplete upload"
// @Router /upload/chunk/{sessionId}/finalize [post]
func chunkFinalizeHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		session, err := deps.Sessions.Get(sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		fields := session.Fields

		localPath, err := deps.Sessions.Finalize(sessionID, r.URL.Query().Get("filename"))
		if err != nil {
			writeError(w, err)
			return
		}

		identity := identityFromRequest(r, deps.Cfg.JWTSecret)

		video, err := deps.Ingestor.Ingest(r.Context(), localPath, fields, identity)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusCreated, UploadResp{
			Message:  "File uploaded successfully",
			Metadata: video,
		})
	}
}

// @Summary Get chunked upload status
// @Tags upload
// @Produce json
// @Success 200 {object} server.ChunkResp
// @Router /upload/chunk/{sessionId}/status [get]
func chunkStatusHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]

		session, err := deps.Sessions.Get(sessionID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, ChunkResp{
			SessionID:      sessionID,
			ChunksReceived: session.ChunksReceived(),
			TotalChunks:    session.TotalChunks,
			Complete:       session.ChunksReceived() == session.TotalChunks,
		})
	}
}

// @Summary List video metadata
// @Description Query-string pairs become equality filters on record fields.
// @Tags videos
// @Produce json
// @Router /metadata [get]
func metadataHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := bson.M{}
		for key, vs := range r.URL.Query() {
			if len(vs) > 0 && vs[0] != "" {
				filter[key] = vs[0]
			}
		}

		videos, err := deps.Videos.List(r.Context(), filter, 200)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]interface{}{"metadata": videos})
	}
}

// @Summary Get one video by id or short id
// @Tags videos
// @Produce json
// @Router /videos/{id} [get]
func getVideoHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, err := deps.Videos.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, video)
	}
}

// Counter fields reachable through the reaction endpoint. The ingestion core
// never touches these after record creation.
var counterFields = map[string]string{
	"view":    "views",
	"like":    "likes",
	"dislike": "dislikes",
}

// @Summary Record a view or reaction
// @Tags videos
// @Produce json
// @Router /videos/{id}/{action} [post]
func counterHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		field, ok := counterFields[vars["action"]]
		if !ok {
			writeError(w, types.InvalidArgumentf("unknown action %q", vars["action"]))
			return
		}

		if err := deps.Videos.IncCounter(r.Context(), vars["id"], field, 1); err != nil {
			writeError(w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// @Summary Fetch a stored thumbnail
// @Tags videos
// @Produce jpeg
// @Router /thumbnail/{id} [get]
func thumbnailHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var buf bytes.Buffer
		if err := deps.DB.ReadThumbnail(id, &buf); err != nil {
			log.Error().Str("thumbnail_id", id).Err(err).Msg("thumbnail read failed")
			writeErrorResponse(w, http.StatusNotFound, err)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(buf.Bytes())
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
