package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"homefeed/internal/handler"
)

// NewRouter builds the HTTP routing table.
func NewRouter(
	accountHandler *handler.AccountHandler,
	postHandler *handler.PostHandler,
	followHandler *handler.FollowHandler,
	feedHandler *handler.FeedHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", accountHandler.Register)
		r.Get("/{id}", accountHandler.GetByID)
		r.Delete("/{id}", accountHandler.Delete)

		r.Post("/{id}/follow", followHandler.Follow)
		r.Delete("/{id}/follow", followHandler.Unfollow)
	})

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", postHandler.Create)
		r.Get("/{id}", postHandler.GetByID)
		r.Delete("/{id}", postHandler.Delete)
	})

	r.Get("/feed", feedHandler.GetTimeline)

	r.Post("/admin/accounts/{id}/recount", accountHandler.RepairCounters)

	return r
}
