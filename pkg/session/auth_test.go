package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocksurge/gosurge/pkg/tokenstore"
)

func TestLogin_SendsFormEncodedPasswordGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
		require.NoError(t, r.ParseForm())
		// The grant names the field "username" even for an email identifier.
		require.Equal(t, "a@b.com", r.PostForm.Get("username"))
		require.Equal(t, "pw", r.PostForm.Get("password"))

		json.NewEncoder(w).Encode(LoginResponse{
			AccessToken:  "AT1",
			RefreshToken: "RT1",
			TokenType:    "bearer",
			User:         User{ID: "1", Email: "a@b.com", Name: "Ada"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := tokenstore.NewMemory()
	c := New(srv.URL, store)

	user, err := c.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "Ada", user.Name)

	access, refresh, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "AT1", access)
	require.Equal(t, "RT1", refresh)
	require.True(t, c.Authenticated())
}

func TestLogin_BadCredentialsDoNotTouchStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Incorrect email or password"}`, http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := tokenstore.NewMemory()
	c := New(srv.URL, store)

	_, err := c.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)

	access, refresh, _ := store.Get()
	require.Empty(t, access)
	require.Empty(t, refresh)
	require.False(t, c.Authenticated())
}

func TestRegister_PostsJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Content-Type"), "application/json")
		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "new@b.com", req.Email)
		require.Equal(t, "Ada", req.Name)

		json.NewEncoder(w).Encode(User{ID: "7", Email: req.Email, Name: req.Name})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, tokenstore.NewMemory())

	user, err := c.Register(context.Background(), "new@b.com", "password123", "Ada")
	require.NoError(t, err)
	require.Equal(t, "7", user.ID)
	// Registration must not log the user in.
	require.False(t, c.Authenticated())
}

func TestCurrentUser_AttachesBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer AT1") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(User{ID: "1", Email: "a@b.com"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := tokenstore.NewMemory()
	store.Set("AT1", "RT1")
	c := New(srv.URL, store)

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a@b.com", user.Email)
}

func TestLogout_ClearsWithoutNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := tokenstore.NewMemory()
	store.Set("AT1", "RT1")
	c := New(srv.URL, store)

	require.NoError(t, c.Logout())
	require.False(t, c.Authenticated())
	require.Zero(t, hits.Load(), "logout must not call the network")
}
