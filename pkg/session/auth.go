package session

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// Register creates a new user account. Plain pass-through, no token writes.
func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	var user User
	_, err := c.Do(ctx, http.MethodPost, endpointRegister, &RequestOptions{
		Body: RegisterRequest{Email: email, Password: password, Name: name},
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "register")
	}
	return &user, nil
}

// Login exchanges credentials for a token pair. The backend speaks the
// OAuth2 password grant, so the body is form-encoded and the identifier
// field is named "username" even though it carries an email. On success the
// pair is written to the token store.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out LoginResponse
	_, err := c.Do(ctx, http.MethodPost, endpointLogin, &RequestOptions{
		FormData: map[string]string{
			"username": email,
			"password": password,
		},
	}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "login")
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, errors.New("login: backend returned an incomplete token pair")
	}
	if err := c.tokens.Set(out.AccessToken, out.RefreshToken); err != nil {
		return nil, errors.Wrap(err, "store tokens")
	}
	c.log.WithField("user", out.User.Email).Info("logged in")
	return &out.User, nil
}

// CurrentUser looks up the authenticated user. Called at startup to detect
// an existing valid session from a durable token store.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	_, err := c.Do(ctx, http.MethodGet, endpointMe, nil, &user)
	if err != nil {
		return nil, errors.Wrap(err, "current user")
	}
	return &user, nil
}

// Logout drops the local credentials. No network call is made; the backend
// tokens simply age out.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// Authenticated reports whether an access token is currently held.
func (c *Client) Authenticated() bool {
	access, _, err := c.tokens.Get()
	return err == nil && access != ""
}
