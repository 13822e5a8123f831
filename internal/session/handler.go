package session

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/FeliciaLa/ExpertA-sub000/internal/identity"
	"github.com/FeliciaLa/ExpertA-sub000/internal/payment"
	"github.com/FeliciaLa/ExpertA-sub000/internal/quota"
	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

const sessionHeader = "X-Session-ID"

// Handler exposes the session façade over HTTP.
type Handler struct {
	mgr *Manager
}

// NewHandler builds the façade's HTTP handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn authenticates a caller and returns a gateway session id.
func (h *Handler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password are required")
	}

	res, err := h.mgr.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"session_id": res.SessionID,
		"message":    res.Message,
		"profile":    profileJSON(res.Identity),
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates an account; when the identity store requires e-mail
// verification the caller stays logged out and only a message is returned.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "name, email and password are required")
	}

	res, err := h.mgr.Register(c.UserContext(), identity.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     identity.Role(req.Role),
	})
	if err != nil {
		return respondError(c, err)
	}

	body := fiber.Map{
		"message":               res.Message,
		"verification_required": res.VerificationRequired,
	}
	if res.SessionID != "" {
		body["session_id"] = res.SessionID
		body["profile"] = profileJSON(res.Identity)
	}
	return c.Status(http.StatusCreated).JSON(body)
}

// SignOut destroys the gateway session. Signing out twice is fine.
func (h *Handler) SignOut(c *fiber.Ctx) error {
	sid := c.Get(sessionHeader)
	if sid == "" {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "signed_out"})
	}
	if err := h.mgr.SignOut(c.UserContext(), sid); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "signed_out"})
}

// Me returns the freshly resolved profile behind the session.
func (h *Handler) Me(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	ident, err := h.mgr.Me(c.UserContext(), sid)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(profileJSON(ident))
}

type sendRequest struct {
	ExpertID string `json:"expert_id"`
	Message  string `json:"message"`
}

// SendMessage forwards one chat message through the usage meter.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ExpertID == "" || req.Message == "" {
		return fiber.NewError(http.StatusBadRequest, "expert_id and message are required")
	}

	res, err := h.mgr.SendMessage(c.UserContext(), sid, req.ExpertID, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"answer":          res.Answer,
		"total_messages":  res.TotalMessages,
		"remaining_turns": res.Remaining,
		"quota_state":     res.State,
	})
}

// Quota reports the quota window for one expert.
func (h *Handler) Quota(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	expertID := c.Params("expertID")
	status, err := h.mgr.Quota(c.UserContext(), sid, expertID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"quota_state":     status.State,
		"remaining_turns": status.Remaining,
		"total_messages":  status.TotalMessages,
		"has_paid_credit": status.HasPaidCredit,
	})
}

type intentRequest struct {
	ExpertID string `json:"expert_id"`
}

// CreatePaymentIntent prepares a message-pack charge.
func (h *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	var req intentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ExpertID == "" {
		return fiber.NewError(http.StatusBadRequest, "expert_id is required")
	}

	intent, err := h.mgr.CreatePaymentIntent(c.UserContext(), sid, req.ExpertID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(intent)
}

type confirmRequest struct {
	ExpertID        string `json:"expert_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmPayment settles a charge and unlocks the paid tier on success.
func (h *Handler) ConfirmPayment(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ExpertID == "" || req.PaymentIntentID == "" {
		return fiber.NewError(http.StatusBadRequest, "expert_id and payment_intent_id are required")
	}

	outcome, err := h.mgr.ConfirmPayment(c.UserContext(), sid, req.ExpertID, req.PaymentIntentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"amount": outcome.Amount,
	})
}

// Receipts lists the caller's recorded purchases.
func (h *Handler) Receipts(c *fiber.Ctx) error {
	sid, err := requireSession(c)
	if err != nil {
		return err
	}
	receipts, err := h.mgr.Receipts(c.UserContext(), sid)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]fiber.Map, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, fiber.Map{
			"id":         r.ID,
			"expert_id":  r.ExpertID,
			"intent_id":  r.IntentID,
			"amount":     r.Amount,
			"created_at": r.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"receipts": out})
}

func requireSession(c *fiber.Ctx) (string, error) {
	sid := c.Get(sessionHeader)
	if sid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "missing "+sessionHeader+" header")
	}
	return sid, nil
}

func profileJSON(ident identity.Identity) fiber.Map {
	return fiber.Map{
		"id":        ident.ID,
		"email":     ident.Email,
		"name":      ident.Name,
		"role":      ident.Role,
		"is_user":   ident.IsUser(),
		"is_expert": ident.IsExpert(),
		"specialty": ident.Specialty,
		"industry":  ident.Industry,
	}
}

// respondError maps the façade's error taxonomy to HTTP statuses with a
// stable machine-readable kind and a human-readable message.
func respondError(c *fiber.Ctx, err error) error {
	kind, status := classify(err)
	return c.Status(status).JSON(fiber.Map{
		"error":   kind,
		"message": err.Error(),
	})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials", http.StatusUnauthorized
	case errors.Is(err, ErrSessionExpired):
		return "session_expired", http.StatusUnauthorized
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "quota_exceeded", http.StatusPaymentRequired
	case errors.Is(err, payment.ErrPaymentFailed):
		return "payment_failed", http.StatusPaymentRequired
	case errors.Is(err, upstream.ErrNetwork):
		return "upstream_unavailable", http.StatusBadGateway
	case errors.Is(err, upstream.ErrMalformed):
		return "upstream_contract", http.StatusBadGateway
	}
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return "upstream_rejected", ue.Status
	}
	return "internal", http.StatusInternalServerError
}
