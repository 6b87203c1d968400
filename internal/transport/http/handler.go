package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/logger"
	"narration-service/internal/service"
)

// maxImportBytes caps CSV uploads.
const maxImportBytes = 10 << 20

type Handler struct {
	orch     *service.Orchestrator
	errs     *service.ErrorCoordinator
	progress *service.ProgressTracker
	chunks   *service.ChunkCoordinator
	log      *logger.Logger
}

type HandlerDeps struct {
	Orchestrator *service.Orchestrator
	Errors       *service.ErrorCoordinator
	Progress     *service.ProgressTracker
	Chunks       *service.ChunkCoordinator
	Log          *logger.Logger
}

func NewHandler(d HandlerDeps) *Handler {
	return &Handler{
		orch:     d.Orchestrator,
		errs:     d.Errors,
		progress: d.Progress,
		chunks:   d.Chunks,
		log:      d.Log.With("component", "http"),
	}
}

// fail writes err with its mapped status; internals are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error("handler failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErr(w, code, "internal error")
		return
	}
	writeErr(w, code, err.Error())
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

type jobConfigDTO struct {
	VoiceID    string `json:"voice_id"`
	Prompt     string `json:"prompt"`
	ChunkSize  int    `json:"chunk_size"`
	MaxRetries int    `json:"max_retries"`
	Priority   *int   `json:"priority,omitempty"` // 0=low,1=normal,2=high (nil => default 1)
}

func (c jobConfigDTO) config() entity.JobConfig {
	priority := entity.PriorityNormal
	if c.Priority != nil {
		priority = *c.Priority
	}
	return entity.JobConfig{
		VoiceID:    c.VoiceID,
		Prompt:     c.Prompt,
		ChunkSize:  c.ChunkSize,
		MaxRetries: c.MaxRetries,
		Priority:   priority,
	}
}

type createJobDTO struct {
	Name   string              `json:"name"`
	Config jobConfigDTO        `json:"config"`
	Items  []entity.ItemSource `json:"items"`
}

type listResp[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResp[T] {
	if items == nil {
		items = []T{}
	}
	return listResp[T]{Items: items, Count: len(items)}
}

// CreateJob godoc
// @Summary Create a narration job
// @Description Creates a job with one pending item per entry. The job ends up ready; start it separately.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job payload"
// @Success 201 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	job, err := h.orch.CreateJob(r.Context(), dto.Name, dto.Config.config(), dto.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ImportJob godoc
// @Summary Create a job from CSV
// @Description Body is CSV (text/csv) or a multipart form with a "file" field. Header: title,details[,category,reference].
// @Tags jobs
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Param name query string false "job name"
// @Param voice_id query string false "voice"
// @Param priority query int false "0=low,1=normal,2=high"
// @Param max_retries query int false "retries per item"
// @Param chunk_size query int false "max characters per chunk"
// @Success 201 {object} entity.Job
// @Failure 400 {object} apiError
// @Router /jobs/import [post]
func (h *Handler) ImportJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	body, err := importBody(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	defer body.Close()

	rows, err := service.ParseRows(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	cfg := jobConfigDTO{VoiceID: q.Get("voice_id"), Prompt: q.Get("prompt")}
	for key, dst := range map[string]*int{
		"max_retries": &cfg.MaxRetries,
		"chunk_size":  &cfg.ChunkSize,
	} {
		if *dst, err = queryInt(q.Get(key)); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid "+key)
			return
		}
	}
	if v := q.Get("priority"); v != "" {
		p, err := queryInt(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid priority")
			return
		}
		cfg.Priority = &p
	}

	name := q.Get("name")
	if name == "" {
		name = "csv import"
	}

	job, err := h.orch.CreateJob(r.Context(), name, cfg.config(), rows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func importBody(r *http.Request) (io.ReadCloser, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return r.Body, nil
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("missing file field")
	}
	return f, nil
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	job, err := h.orch.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetJobProgress godoc
// @Summary Job progress with ETA
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} service.JobProgress
// @Failure 404 {object} apiError
// @Router /jobs/{id}/progress [get]
func (h *Handler) GetJobProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := h.progress.GetJobProgress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListJobItems godoc
// @Summary Items of a job, in row order
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} listResp[entity.ContentItem]
// @Failure 404 {object} apiError
// @Router /jobs/{id}/items [get]
func (h *Handler) ListJobItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	items, err := h.orch.ListItems(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

// ListJobErrors godoc
// @Summary Error log of a job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} listResp[entity.ErrorLog]
// @Failure 404 {object} apiError
// @Router /jobs/{id}/errors [get]
func (h *Handler) ListJobErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	logs, err := h.orch.ListErrors(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(logs))
}

type jobAction func(h *Handler, r *http.Request, id uuid.UUID) error

// jobCommand wraps a lifecycle action and answers with the job after it.
func (h *Handler) jobCommand(action jobAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := action(h, r, id); err != nil {
			h.fail(w, r, err)
			return
		}
		job, err := h.orch.GetJob(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// StartJob godoc
// @Summary Start processing (ready -> processing) and enqueue pending items
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/start [post]
func startJob(h *Handler, r *http.Request, id uuid.UUID) error {
	_, err := h.orch.StartJobProcessing(r.Context(), id)
	return err
}

// PauseJob godoc
// @Summary Pause a processing job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 409 {object} apiError
// @Router /jobs/{id}/pause [post]
func pauseJob(h *Handler, r *http.Request, id uuid.UUID) error {
	_, err := h.orch.PauseJob(r.Context(), id)
	return err
}

// ResumeJob godoc
// @Summary Resume a paused job
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 409 {object} apiError
// @Router /jobs/{id}/resume [post]
func resumeJob(h *Handler, r *http.Request, id uuid.UUID) error {
	_, err := h.orch.ResumeJob(r.Context(), id)
	return err
}

// CancelJob godoc
// @Summary Cancel a job; open items fail with code cancelled
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 409 {object} apiError
// @Router /jobs/{id}/cancel [post]
func cancelJob(h *Handler, r *http.Request, id uuid.UUID) error {
	_, err := h.orch.CancelJobProcessing(r.Context(), id)
	return err
}

// ResetJob godoc
// @Summary Reset a failed job to paused for manual recovery
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 409 {object} apiError
// @Router /jobs/{id}/reset [post]
func resetJob(h *Handler, r *http.Request, id uuid.UUID) error {
	return h.errs.ResetEntity(r.Context(), service.ScopeJob, id)
}

type itemResp struct {
	*entity.ContentItem
	Progress service.ItemProgress `json:"progress"`
}

// GetItem godoc
// @Summary Get item by id
// @Tags items
// @Produce json
// @Param id path string true "item id (uuid)"
// @Success 200 {object} itemResp
// @Failure 404 {object} apiError
// @Router /items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	it, err := h.orch.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.progress.GetItemProgress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResp{ContentItem: it, Progress: p})
}

type chunksResp struct {
	Chunks []*entity.AudioChunk `json:"chunks"`
	Status service.ChunkStatus  `json:"status"`
}

// ListItemChunks godoc
// @Summary Audio chunks of an item plus live coordinator state
// @Tags items
// @Produce json
// @Param id path string true "item id (uuid)"
// @Success 200 {object} chunksResp
// @Failure 404 {object} apiError
// @Router /items/{id}/chunks [get]
func (h *Handler) ListItemChunks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	chunks, err := h.orch.ListChunks(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []*entity.AudioChunk{}
	}
	writeJSON(w, http.StatusOK, chunksResp{Chunks: chunks, Status: h.chunks.GetChunkStatus(id)})
}

// ResetItem godoc
// @Summary Reset an item to pending; re-enqueued if its job is processing
// @Tags items
// @Produce json
// @Param id path string true "item id (uuid)"
// @Success 200 {object} entity.ContentItem
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /items/{id}/reset [post]
func (h *Handler) ResetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.errs.ResetEntity(r.Context(), service.ScopeItem, id); err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.orch.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
