// Package session implements the authenticated request pipeline: every
// outbound call carries the current bearer token, and a 401 triggers one
// shared refresh followed by at most one replay of the failed request.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stocksurge/gosurge/pkg/logger"
	"github.com/stocksurge/gosurge/pkg/tokenstore"
)

const (
	endpointRegister = "/auth/register"
	endpointLogin    = "/auth/login"
	endpointRefresh  = "/auth/refresh"
	endpointMe       = "/auth/me"
)

// ErrSessionExpired is returned when the refresh call itself fails. The
// credentials are already cleared; the caller should route to login.
var ErrSessionExpired = errors.New("session expired: token refresh failed")

// APIError carries a non-2xx response through to the caller unmodified.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Client is the session-aware HTTP pipeline. All domain endpoints go through
// Do; authentication recovery is internal and callers only see the final
// outcome.
type Client struct {
	rest   *resty.Client
	bare   *resty.Client // refresh calls bypass the bearer middleware
	tokens tokenstore.Store
	group  singleflight.Group
	log    *logrus.Entry
}

// New creates a session client against baseURL backed by the given store.
func New(baseURL string, tokens tokenstore.Store) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		tokens: tokens,
		log:    logger.WithComponent("session"),
	}

	c.rest = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gosurge-client")
	c.rest.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		access, _, err := tokens.Get()
		if err != nil {
			return errors.Wrap(err, "read token store")
		}
		if access != "" {
			r.SetHeader("Authorization", "Bearer "+access)
		}
		if r.Header.Get("X-Request-ID") == "" {
			r.SetHeader("X-Request-ID", uuid.NewString())
		}
		return nil
	})

	c.bare = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gosurge-client")

	return c
}

// RequestOptions carries the per-call extras.
type RequestOptions struct {
	Headers  map[string]string
	Body     any
	FormData map[string]string
	Params   map[string]string
}

// Do executes one request through the pipeline. On a 401 with a refresh
// token present it refreshes once (shared across concurrent failures) and
// replays the request exactly once; the replay's outcome is the caller's
// outcome. Every other status passes through as-is.
func (c *Client) Do(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	resp, err := c.send(ctx, method, endpoint, opt, out)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		_, refresh, terr := c.tokens.Get()
		if terr != nil {
			return resp, errors.Wrap(terr, "read token store")
		}
		if refresh != "" {
			if rerr := c.refreshAccessToken(ctx, sentBearer(resp)); rerr != nil {
				return resp, rerr
			}
			// One replay per request; a second 401 falls through below.
			resp, err = c.send(ctx, method, endpoint, opt, out)
			if err != nil {
				return resp, err
			}
		}
	}

	if resp.IsError() {
		return resp, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	r := c.rest.R().SetContext(ctx)
	if opt != nil {
		if opt.Headers != nil {
			r.SetHeaders(opt.Headers)
		}
		if opt.Params != nil {
			r.SetQueryParams(opt.Params)
		}
		if opt.FormData != nil {
			r.SetFormData(opt.FormData)
		}
		if opt.Body != nil {
			r.SetHeader("Content-Type", "application/json")
			r.SetBody(opt.Body)
		}
	}
	if out != nil {
		r.SetResult(out)
	}
	return r.Execute(strings.ToUpper(method), endpoint)
}

// refreshAccessToken exchanges the refresh token for a new access token.
// Concurrent failures share a single in-flight refresh; everyone in the
// window observes the same outcome. On failure the store is cleared (inside
// the shared call, so exactly once) and ErrSessionExpired is returned.
func (c *Client) refreshAccessToken(ctx context.Context, staleAccess string) error {
	_, err, shared := c.group.Do("auth-refresh", func() (any, error) {
		access, refresh, err := c.tokens.Get()
		if err != nil {
			return nil, errors.Wrap(err, "read token store")
		}
		if refresh == "" {
			// Another caller in this window already failed and cleared.
			return nil, ErrSessionExpired
		}
		if access != "" && access != staleAccess {
			// The token rotated after this request was sent; replay with it.
			return nil, nil
		}

		var tokens TokenResponse
		resp, err := c.bare.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"refresh_token": refresh}).
			SetResult(&tokens).
			Post(endpointRefresh)
		if err != nil || resp.IsError() || tokens.AccessToken == "" {
			if cerr := c.tokens.Clear(); cerr != nil {
				c.log.WithError(cerr).Warn("failed to clear token store after refresh failure")
			}
			if err != nil {
				c.log.WithError(err).Warn("token refresh failed")
			} else {
				c.log.WithField("status", resp.StatusCode()).Warn("token refresh rejected")
			}
			return nil, ErrSessionExpired
		}

		// Access token rotates, refresh token stays.
		if err := c.tokens.Set(tokens.AccessToken, refresh); err != nil {
			return nil, errors.Wrap(err, "store refreshed token")
		}
		c.log.Debug("access token refreshed")
		return nil, nil
	})
	if err != nil {
		return err
	}
	if shared {
		c.log.Debug("joined in-flight token refresh")
	}
	return nil
}

// sentBearer extracts the access token the request actually carried.
func sentBearer(resp *resty.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return strings.TrimPrefix(resp.Request.Header.Get("Authorization"), "Bearer ")
}
