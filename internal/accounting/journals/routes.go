package journals

import "github.com/go-chi/chi/v5"

// Routes mounts the journal endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/reverse", h.reverse)
}
