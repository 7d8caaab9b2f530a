package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lectorlips/internal/compileservice"
)

// CompileHook is notified after every API compile attempt.
type CompileHook func(kind, source string, res *compileservice.Result, err error)

// Handler holds API route handlers.
type Handler struct {
	svc    *compileservice.Service
	onDone CompileHook
}

// NewHandler creates a new Handler. onDone may be nil.
func NewHandler(svc *compileservice.Service, onDone CompileHook) *Handler {
	return &Handler{svc: svc, onDone: onDone}
}

// Compile handles POST /api/compile.
//
//	@Summary		Compile keyframes into a sequencer morph list
//	@Tags			compile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CompileRequest	true	"Keyframe export"
//	@Success		201		{object}	CompileResponse
//	@Success		200		{object}	CompileResponse	"dry run"
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		412		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/compile [post]
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	res, err := h.svc.Compile(r.Context(), source, []byte(req.Keyframes), req.toService())
	if err != nil {
		h.notify("failed", source, nil, err)
		writeError(w, "compile", err)
		return
	}
	if req.DryRun {
		writeJSON(w, http.StatusOK, res)
		return
	}
	h.notify("succeeded", source, res, nil)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) notify(kind, source string, res *compileservice.Result, err error) {
	if h.onDone != nil {
		h.onDone(kind, source, res, err)
	}
}

// GetMapping handles GET /api/mapping.
//
//	@Summary		Get the viseme mapping
//	@Tags			mapping
//	@Produce		json
//	@Success		200	{object}	MappingResponse
//	@Failure		412	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mapping [get]
func (h *Handler) GetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Mapping(r.Context(), "")
	if err != nil {
		writeError(w, "get mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, MappingResponse{Mapping: m})
}

// PutMapping handles PUT /api/mapping.
//
//	@Summary		Create or replace the viseme mapping
//	@Tags			mapping
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MappingRequest	true	"15 ordered texture suffixes"
//	@Success		201		{object}	MappingResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mapping [put]
func (h *Handler) PutMapping(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	m, err := h.svc.CreateMapping(r.Context(), req.Suffixes, "", req.Replace)
	if err != nil {
		writeError(w, "put mapping", err)
		return
	}
	writeJSON(w, http.StatusCreated, MappingResponse{Mapping: m})
}

// ListHistory handles GET /api/history.
//
//	@Summary		List recorded compiles, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.History(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Compiles: rows, Total: total})
}

// GetHistory handles GET /api/history/{id}.
//
//	@Summary		Get one recorded compile with its skipped keyframes
//	@Tags			history
//	@Produce		json
//	@Param			id	path		int	true	"Compile ID"
//	@Success		200	{object}	CompileRow
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history/{id} [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be a positive integer"))
		return
	}
	row, err := h.svc.GetCompile(r.Context(), id)
	if err != nil {
		writeError(w, "get history", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
