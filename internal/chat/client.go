package chat

import (
	"context"
	"fmt"
	"net/http"

	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

// Reply is the conversation engine's answer to one message. TotalMessages is
// the authoritative count of all messages exchanged for this (caller, expert)
// pair, both sides included.
type Reply struct {
	Answer        string
	TotalMessages int
	SessionID     string
}

// Client talks to the external conversation engine.
type Client struct {
	api *upstream.Client
}

// NewClient wraps the shared upstream transport for the conversation engine.
func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

type sendResponse struct {
	Answer        string `json:"answer"`
	TotalMessages *int   `json:"total_messages"`
	SessionID     string `json:"session_id"`
}

// Send forwards one message to an expert's chatbot and returns the reply with
// the server-side message total.
func (c *Client) Send(ctx context.Context, access, expertID, text string) (Reply, error) {
	body := map[string]string{"message": text, "expert_id": expertID}
	var resp sendResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/chat", access, body, &resp); err != nil {
		return Reply{}, err
	}
	if resp.TotalMessages == nil {
		return Reply{}, fmt.Errorf("%w: total_messages missing from chat response", upstream.ErrMalformed)
	}
	return Reply{
		Answer:        resp.Answer,
		TotalMessages: *resp.TotalMessages,
		SessionID:     resp.SessionID,
	}, nil
}
