package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
	Activity *activity.Logger
	Log      *zap.Logger
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, act *activity.Logger, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Activity: act, Log: log}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (h *AuthHandler) details(c echo.Context, meta map[string]any) activity.Details {
	return activity.Details{
		Method:    c.Request().Method,
		Endpoint:  c.Request().URL.Path,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Metadata:  meta,
	}
}

func authActor(id uint64, email string) activity.Actor {
	return activity.Actor{UserID: strconv.FormatUint(id, 10), Username: email}
}

func (h *AuthHandler) bindCredentials(c echo.Context) (credentialsReq, bool) {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return req, false
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return req, req.Email != "" && req.Password != ""
}

// issue mints an access token and a stored refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u userPart) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
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
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

func (h *AuthHandler) serverError(c echo.Context, msg string, err error) error {
	h.Log.Error(msg, zap.Error(err), zap.String("request_id", middleware.RequestIDFrom(c)))
	middleware.SetError(c, err)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: msg})
}

// Register: create a customer and return tokens immediately. Admin accounts
// are only created by bootstrap.
func (h *AuthHandler) Register(c echo.Context) error {
	req, ok := h.bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "email/password required"})
	}
	if len(req.Password) < 8 {
		return badRequest(c, "password", "must be at least 8 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleCustomer, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, errorBody{Error: "email already exists"})
		}
		return h.serverError(c, "create user failed", err)
	}

	resp, err := h.issue(ctx, userPart{ID: uid, Email: req.Email, Role: model.RoleCustomer})
	if err != nil {
		return h.serverError(c, "issue tokens failed", err)
	}
	h.Activity.LogAuth(activity.ActionRegister, authActor(uid, req.Email), h.details(c, nil))
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return a new pair. Unknown email and wrong password
// look the same to the client.
func (h *AuthHandler) Login(c echo.Context) error {
	req, ok := h.bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return h.serverError(c, "query failed", err)
	}
	if err != nil || !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		reason := "bad_password"
		if err != nil {
			reason = "unknown_email"
		} else if !u.IsActive {
			reason = "inactive"
		}
		h.Activity.LogAuth(activity.ActionLoginFailed, activity.Actor{Username: req.Email},
			h.details(c, map[string]any{"reason": reason}))
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
	}

	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return h.serverError(c, "issue tokens failed", err)
	}
	h.Activity.LogAuth(activity.ActionLoginSuccess, authActor(u.ID, u.Email), h.details(c, nil))
	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) refreshUser(ctx context.Context, c echo.Context) (model.User, string, error) {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return model.User{}, "", c.JSON(http.StatusBadRequest, errorBody{Error: "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return model.User{}, "", c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, "", c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid refresh"})
		}
		return model.User{}, "", h.serverError(c, "load user failed", err)
	}
	return u, hash, nil
}

// Refresh: validate by hash, revoke old, issue a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, hash, err := h.refreshUser(ctx, c)
	if hash == "" {
		return err
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return h.serverError(c, "revoke refresh failed", err)
	}
	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return h.serverError(c, "issue tokens failed", err)
	}
	h.Activity.LogAuth(activity.ActionTokenRefresh, authActor(u.ID, u.Email), h.details(c, map[string]any{"rotated": true}))
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, hash, err := h.refreshUser(ctx, c)
	if hash == "" {
		return err
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return h.serverError(c, "issue access failed", err)
	}
	h.Activity.LogAuth(activity.ActionTokenRefresh, authActor(u.ID, u.Email), h.details(c, map[string]any{"rotated": false}))
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes one refresh token when the body carries it, otherwise
// every refresh token of the bearer's user. It runs without JWT middleware.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer ")); err == nil {
			uid = claims.UserID
		}
	}
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		owner, err := h.Tokens.ValidateRefresh(ctx, hash)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return h.serverError(c, "logout failed", err)
		}
		h.Activity.LogAuth(activity.ActionLogout, authActor(owner, ""), h.details(c, map[string]any{"scope": "session"}))
	case uid != 0:
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return h.serverError(c, "logout failed", err)
		}
		h.Activity.LogAuth(activity.ActionLogout, authActor(uid, ""), h.details(c, map[string]any{"scope": "all"}))
	default:
		return c.JSON(http.StatusBadRequest, errorBody{Error: "provide Authorization header or refresh_token"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the caller's identity from the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": uid,
		"role":    middleware.Role(c),
	})
}
