package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

// Accounts is the user directory used by the auth endpoints.
type Accounts interface {
	Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetSkills(ctx context.Context, userID uint64, skills []string) error
}

// RefreshTokens stores hashed refresh tokens.
type RefreshTokens interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	// RevokeByHash reports whether this call revoked a live token.
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// TxRunner runs fn inside one store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Tx     TxRunner
	Users  Accounts
	Tokens RefreshTokens
}

func NewAuthHandler(cfg config.Config, tx TxRunner, u Accounts, t RefreshTokens) *AuthHandler {
	if tx == nil || u == nil || t == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Cfg: cfg, Tx: tx, Users: u, Tokens: t}
}

const (
	authTimeout    = 5 * time.Second
	minPasswordLen = 6
	maxSkills      = 32
)

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // STUDENT | ADMIN
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type skillsReq struct {
	Skills []string `json:"skills"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}
type profileResp struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"createdAt"`
}

func profileOf(u model.User) profileResp {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	return profileResp{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Skills: skills, CreatedAt: u.CreatedAt}
}

// issue creates an access/refresh pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, model.UserRef{ID: u.ID, Name: u.Name, Role: u.Role}, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register handles POST /auth/register: create a user and return tokens
// immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return invalid(c, "name, email and password are required")
	}
	if len(req.Password) < minPasswordLen {
		return invalid(c, "password must be at least 6 characters")
	}
	role := model.RoleStudent
	if strings.EqualFold(strings.TrimSpace(req.Role), model.RoleAdmin) && h.Cfg.AdminSignup {
		role = model.RoleAdmin
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists", "code": "email_exists"})
		}
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, model.User{ID: uid, Name: req.Name, Email: req.Email, Role: role})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login handles POST /auth/login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return invalid(c, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return writeError(c, model.NewError(model.ErrUnauthenticated, "invalid credentials"))
		}
		return writeError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return writeError(c, model.NewError(model.ErrUnauthenticated, "invalid credentials"))
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh handles POST /auth/refresh: validate by hash, revoke the old
// token and issue a new pair.  Revocation is the gate: of two requests
// carrying the same token only the one that revoked it gets a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return invalid(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return writeError(c, err)
	}
	revoked, err := h.Tokens.RevokeByHash(ctx, hash)
	if err != nil {
		return writeError(c, err)
	}
	if !revoked {
		return writeError(c, model.NewError(model.ErrUnauthenticated, "refresh token expired or revoked"))
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return writeError(c, model.NewError(model.ErrUnauthenticated, "invalid refresh token"))
		}
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout handles POST /auth/logout.  A refresh_token in the body revokes
// that session; otherwise a valid bearer token revokes every session of
// its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return writeError(c, err)
		}
		if _, err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return invalid(c, "provide Authorization header or refresh_token")
	}
	user, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Profile handles GET /auth/profile.
func (h *AuthHandler) Profile(c echo.Context) error {
	me, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, me.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profileOf(u))
}

// UpdateSkills handles PUT /auth/skills, replacing the caller's skill set.
// Skills are trimmed and deduplicated case-insensitively.
func (h *AuthHandler) UpdateSkills(c echo.Context) error {
	me, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req skillsReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	skills := normalizeSkills(req.Skills)
	if len(skills) > maxSkills {
		return invalid(c, "too many skills")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	var u model.User
	err = h.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := h.Users.SetSkills(ctx, me.ID, skills); err != nil {
			return err
		}
		got, err := h.Users.GetByID(ctx, me.ID)
		u = got
		return err
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profileOf(u))
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
