package devserver

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type userRow struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    string
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

func userJSON(u *userRow) gin.H {
	return gin.H{
		"id":         strconv.FormatInt(u.ID, 10),
		"email":      u.Email,
		"name":       u.Name,
		"created_at": u.CreatedAt,
	}
}

func (s *Server) findUser(email string) (*userRow, error) {
	var u userRow
	err := s.db.QueryRow(
		`SELECT id, email, password_hash, name, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	if _, err := s.findUser(req.Email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "hash failure"})
		return
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, name, created_at) VALUES (?, ?, ?, ?)`,
		req.Email, string(hash), req.Name, createdAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "insert failure"})
		return
	}
	id, _ := res.LastInsertId()
	c.JSON(http.StatusOK, userJSON(&userRow{ID: id, Email: req.Email, Name: req.Name, CreatedAt: createdAt}))
}

// handleLogin speaks the OAuth2 password grant: form-encoded body with
// "username" carrying the email.
func (s *Server) handleLogin(c *gin.Context) {
	if !s.loginLimiter.Allow(c.ClientIP()) {
		retry := int(s.loginLimiter.RetryAfter(c.ClientIP()).Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Too many login attempts"})
		return
	}

	email := c.PostForm("username")
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "username and password are required"})
		return
	}

	u, err := s.findUser(email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password"})
		return
	}

	access, err := s.issueToken(u.Email, tokenTypeAccess, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token failure"})
		return
	}
	refresh, err := s.issueToken(u.Email, tokenTypeRefresh, refreshTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token failure"})
		return
	}
	s.loginLimiter.Reset(c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"user": gin.H{
			"id":    strconv.FormatInt(u.ID, 10),
			"email": u.Email,
			"name":  u.Name,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "refresh_token is required"})
		return
	}

	email, err := s.verifyToken(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired refresh token"})
		return
	}
	if _, err := s.findUser(email); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
		return
	}

	access, err := s.issueToken(email, tokenTypeAccess, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "token_type": "bearer"})
}

func (s *Server) handleMe(c *gin.Context) {
	u, ok := s.authenticate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userJSON(u))
}

// authenticate resolves the bearer token to a user, writing the 401 itself
// on failure.
func (s *Server) authenticate(c *gin.Context) (*userRow, bool) {
	header := c.GetHeader("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if header == "" || raw == header {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return nil, false
	}
	email, err := s.verifyToken(raw, tokenTypeAccess)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
		return nil, false
	}
	u, err := s.findUser(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "lookup failure"})
		}
		return nil, false
	}
	return u, true
}
