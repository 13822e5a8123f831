package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

// ErrPaymentFailed indicates the payment processor declined the charge. The
// outcome is surfaced verbatim and never retried automatically.
var ErrPaymentFailed = errors.New("payment failed")

// Intent is a pending charge prepared by the payment processor. ClientSecret
// is handed to the UI layer to complete the charge out-of-band.
type Intent struct {
	ClientSecret   string `json:"client_secret"`
	Amount         int64  `json:"amount"`
	ExpertAmount   int64  `json:"expert_amount"`
	PlatformAmount int64  `json:"platform_amount"`
}

// Outcome is the boolean result the core consumes from a confirmation.
type Outcome struct {
	Success  bool
	Amount   int64
	ExpertID string
}

// Client talks to the external payment processor.
type Client struct {
	api *upstream.Client
}

// NewClient wraps the shared upstream transport for the payment processor.
func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

// CreateIntent prepares a charge for one expert's message pack.
func (c *Client) CreateIntent(ctx context.Context, access, expertID string) (Intent, error) {
	body := map[string]string{"expert_id": expertID}
	var intent Intent
	if err := c.api.Do(ctx, http.MethodPost, "/api/payment/create-intent", access, body, &intent); err != nil {
		return Intent{}, err
	}
	if intent.ClientSecret == "" {
		return Intent{}, fmt.Errorf("%w: client_secret missing from intent response", upstream.ErrMalformed)
	}
	return intent, nil
}

type confirmResponse struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"`
	Error  string `json:"error"`
}

// Confirm settles a previously created intent and reduces the processor's
// answer to a boolean outcome.
func (c *Client) Confirm(ctx context.Context, access, intentID, expertID string) (Outcome, error) {
	body := map[string]string{"payment_intent_id": intentID, "expert_id": expertID}
	var resp confirmResponse
	err := c.api.Do(ctx, http.MethodPost, "/api/payment/confirm", access, body, &resp)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.Status == http.StatusPaymentRequired {
			return Outcome{ExpertID: expertID}, fmt.Errorf("%w: %s", ErrPaymentFailed, ue.Message)
		}
		return Outcome{}, err
	}

	if !strings.EqualFold(resp.Status, "success") {
		msg := resp.Error
		if msg == "" {
			msg = "charge declined"
		}
		return Outcome{ExpertID: expertID}, fmt.Errorf("%w: %s", ErrPaymentFailed, msg)
	}
	return Outcome{Success: true, Amount: resp.Amount, ExpertID: expertID}, nil
}
