package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FeliciaLa/ExpertA-sub000/internal/session"
)

// RegisterChatRoutes wires the metered conversation endpoints.
func RegisterChatRoutes(r fiber.Router, h *session.Handler) {
	group := r.Group("/chat")
	group.Post("/send", h.SendMessage)
	group.Get("/:expertID/quota", h.Quota)
}
