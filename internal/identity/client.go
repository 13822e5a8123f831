package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

// ErrInvalidCredentials indicates the identity store rejected an email and
// password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Tokens is the bearer pair issued by the identity store.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResult is the outcome of a successful authentication.
type LoginResult struct {
	Tokens   Tokens
	Identity Identity
	Message  string
}

// RegisterInput captures the data needed to create an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// RegisterResult describes a completed registration. When the identity store
// requires e-mail verification no tokens are issued and the caller stays
// logged out.
type RegisterResult struct {
	Message              string
	VerificationRequired bool
	Tokens               Tokens
	Identity             Identity
}

// ExpertPolicy is the metering policy published on an expert profile.
type ExpertPolicy struct {
	MonetizationEnabled bool
	FreeTurns           int
	PaidTurns           int
}

// Client talks to the external identity store.
type Client struct {
	api *upstream.Client
}

// NewClient wraps the shared upstream transport for the identity store.
func NewClient(api *upstream.Client) *Client {
	return &Client{api: api}
}

type loginResponse struct {
	Tokens  Tokens   `json:"tokens"`
	User    *Payload `json:"user"`
	Expert  *Payload `json:"expert"`
	Message string   `json:"message"`
}

// Login authenticates an email/password pair. The response carries the
// profile under either a user or an expert key depending on the account kind.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var resp loginResponse
	err := c.api.Do(ctx, http.MethodPost, "/api/login", "", body, &resp)
	if err != nil {
		var ue *upstream.Error
		if errors.Is(err, upstream.ErrUnauthorized) {
			return LoginResult{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, "email or password incorrect")
		}
		if errors.As(err, &ue) && ue.Status < http.StatusInternalServerError {
			return LoginResult{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, ue.Message)
		}
		return LoginResult{}, err
	}

	if resp.Tokens.Access == "" || resp.Tokens.Refresh == "" {
		return LoginResult{}, fmt.Errorf("%w: token pair missing from login response", upstream.ErrMalformed)
	}

	payload := resp.User
	if payload == nil {
		payload = resp.Expert
	}
	if payload == nil {
		return LoginResult{}, fmt.Errorf("%w: profile missing from login response", upstream.ErrMalformed)
	}
	ident, err := FromPayload(*payload)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", upstream.ErrMalformed, err)
	}

	return LoginResult{Tokens: resp.Tokens, Identity: ident, Message: resp.Message}, nil
}

type registerResponse struct {
	Tokens  Tokens   `json:"tokens"`
	User    *Payload `json:"user"`
	Expert  *Payload `json:"expert"`
	Message string   `json:"message"`
}

// Register creates an account with the requested role.
func (c *Client) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	role := input.Role
	if role != RoleExpert {
		role = RoleUser
	}
	body := map[string]string{
		"name":     input.Name,
		"email":    input.Email,
		"password": input.Password,
		"role":     string(role),
	}

	var resp registerResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/register", "", body, &resp); err != nil {
		return RegisterResult{}, err
	}

	result := RegisterResult{Message: resp.Message, Tokens: resp.Tokens}
	if resp.Tokens.Access == "" {
		// Account created but held for e-mail verification.
		result.VerificationRequired = true
		return result, nil
	}

	payload := resp.User
	if payload == nil {
		payload = resp.Expert
	}
	if payload == nil {
		return RegisterResult{}, fmt.Errorf("%w: profile missing from register response", upstream.ErrMalformed)
	}
	ident, err := FromPayload(*payload)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", upstream.ErrMalformed, err)
	}
	result.Identity = ident
	return result, nil
}

// Refresh exchanges a refresh token for a new access token. An upstream 401
// means the refresh token itself is spent.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh": refreshToken}
	var resp struct {
		Access string `json:"access"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "/api/token/refresh", "", body, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", fmt.Errorf("%w: access token missing from refresh response", upstream.ErrMalformed)
	}
	return resp.Access, nil
}

// Profile fetches and resolves the identity behind an access token.
func (c *Client) Profile(ctx context.Context, access string) (Identity, error) {
	var payload Payload
	if err := c.api.Do(ctx, http.MethodGet, "/api/profile", access, nil, &payload); err != nil {
		return Identity{}, err
	}
	ident, err := FromPayload(payload)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", upstream.ErrMalformed, err)
	}
	return ident, nil
}

type expertResponse struct {
	MonetizationEnabled bool `json:"monetization_enabled"`
	FreeTurns           int  `json:"free_turns"`
	PaidTurns           int  `json:"paid_turns"`
}

// ExpertPolicy fetches the metering policy for one expert.
func (c *Client) ExpertPolicy(ctx context.Context, access, expertID string) (ExpertPolicy, error) {
	var resp expertResponse
	path := "/api/experts/" + url.PathEscape(expertID)
	if err := c.api.Do(ctx, http.MethodGet, path, access, nil, &resp); err != nil {
		return ExpertPolicy{}, err
	}
	return ExpertPolicy{
		MonetizationEnabled: resp.MonetizationEnabled,
		FreeTurns:           resp.FreeTurns,
		PaidTurns:           resp.PaidTurns,
	}, nil
}
