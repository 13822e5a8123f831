package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FeliciaLa/ExpertA-sub000/internal/session"
)

// RegisterPaymentRoutes wires the message-pack purchase endpoints. The
// confirm route takes an optional idempotency guard so a retried confirm
// cannot double-charge.
func RegisterPaymentRoutes(r fiber.Router, h *session.Handler, confirmGuard fiber.Handler) {
	group := r.Group("/payments")
	group.Post("/intent", h.CreatePaymentIntent)
	if confirmGuard != nil {
		group.Post("/confirm", confirmGuard, h.ConfirmPayment)
	} else {
		group.Post("/confirm", h.ConfirmPayment)
	}
	group.Get("/receipts", h.Receipts)
}
