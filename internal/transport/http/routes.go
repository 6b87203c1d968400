package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	// базовые middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// наш логгер (после RequestID)
	r.Use(RequestLogger(h.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Post("/import", h.ImportJob)
		r.Get("/{id}", h.GetJob)
		r.Get("/{id}/progress", h.GetJobProgress)
		r.Get("/{id}/items", h.ListJobItems)
		r.Get("/{id}/errors", h.ListJobErrors)
		r.Post("/{id}/start", h.jobCommand(startJob))
		r.Post("/{id}/pause", h.jobCommand(pauseJob))
		r.Post("/{id}/resume", h.jobCommand(resumeJob))
		r.Post("/{id}/cancel", h.jobCommand(cancelJob))
		r.Post("/{id}/reset", h.jobCommand(resetJob))
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/{id}", h.GetItem)
		r.Get("/{id}/chunks", h.ListItemChunks)
		r.Post("/{id}/reset", h.ResetItem)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
