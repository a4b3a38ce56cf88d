package wire

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/server"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuthFunc resolves the bearer credential on a request to a userId, or
// reports it invalid. Credential format and issuance are the caller's
// concern; AuthFunc only hands back a resolved identity.
type AuthFunc func(r *http.Request) (userId string, ok bool)

// Handler exposes a server.Service over REST: POST /sync/upload,
// GET /sync/download, GET /sync/state.
type Handler struct {
	svc  *server.Service
	auth AuthFunc
	log  zerolog.Logger
}

// NewHandler builds the chi router for svc. auth is consulted on every
// request; a request that fails it is rejected with the AUTH wire code.
func NewHandler(svc *server.Service, auth AuthFunc, log zerolog.Logger) http.Handler {
	h := &Handler{svc: svc, auth: auth, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/sync", func(r chi.Router) {
		r.Post("/upload", h.handleUpload)
		r.Get("/download", h.handleDownload)
		r.Get("/state", h.handleState)
	})
	return r
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.auth(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, syncerr.CodeAuth, "invalid credential")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, syncerr.CodeAuth, "malformed upload request")
		return
	}

	ops := make([]op.Operation, len(req.Ops))
	for i, wireOp := range req.Ops {
		ops[i] = op.DecodeWire(wireOp)
	}

	results, err := h.svc.UploadOps(userId, req.ClientId, ops)
	if err != nil {
		h.log.Error().Err(err).Str("userId", userId).Msg("uploadOps failed")
		writeError(w, http.StatusInternalServerError, syncerr.CodeUnavailable, "upload failed")
		return
	}

	dtos := make([]UploadResultDTO, len(results))
	for i, res := range results {
		dtos[i] = UploadResultDTO{
			OpId:          res.OpId,
			Accepted:      res.Accepted,
			ServerSeq:     res.ServerSeq,
			ErrorCode:     res.ErrorCode,
			ExistingClock: vcToWire(res.ExistingClock),
		}
	}
	writeJSON(w, http.StatusOK, UploadResponse{Version: ProtocolVersion, Results: dtos})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.auth(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, syncerr.CodeAuth, "invalid credential")
		return
	}

	sinceSeq, _ := strconv.ParseUint(r.URL.Query().Get("sinceSeq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ops, maxSeq, err := h.svc.GetOpsSince(userId, sinceSeq, limit)
	if err != nil {
		h.log.Error().Err(err).Str("userId", userId).Msg("getOpsSince failed")
		writeError(w, http.StatusInternalServerError, syncerr.CodeUnavailable, "download failed")
		return
	}

	dtos := make([]StoredOperationDTO, len(ops))
	for i, o := range ops {
		dtos[i] = storedToDTO(o)
	}
	writeJSON(w, http.StatusOK, DownloadResponse{Version: ProtocolVersion, Ops: dtos, MaxServerSeq: maxSeq})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	userId, ok := h.auth(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, syncerr.CodeAuth, "invalid credential")
		return
	}

	state, err := h.svc.GetUserSyncState(userId)
	if err != nil {
		h.log.Error().Err(err).Str("userId", userId).Msg("getUserSyncState failed")
		writeError(w, http.StatusInternalServerError, syncerr.CodeUnavailable, "state lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, SyncStateResponse{
		Version:          ProtocolVersion,
		MaxServerSeq:     state.MaxServerSeq,
		HasInitialImport: state.HasInitialImport,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code syncerr.Code, msg string) {
	writeJSON(w, status, ErrorResponse{Version: ProtocolVersion, Code: code, Message: msg})
}
