package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FeliciaLa/ExpertA-sub000/internal/session"
)

// RegisterSessionRoutes wires the session lifecycle endpoints.
func RegisterSessionRoutes(r fiber.Router, h *session.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/session")
	if rateLimiter != nil {
		group.Post("/sign-in", rateLimiter, h.SignIn)
	} else {
		group.Post("/sign-in", h.SignIn)
	}
	group.Post("/register", h.Register)
	group.Post("/sign-out", h.SignOut)
	group.Get("/me", h.Me)
}
