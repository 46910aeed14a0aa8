// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/middleware"
	requestutil "github.com/procuramarket/procura/internal/platform/request"
	"github.com/procuramarket/procura/internal/platform/respond"
	"github.com/procuramarket/procura/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements operator-account HTTP endpoints.
type Handler struct {
	adminService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{adminService: service}
}

// Routes returns a [chi.Router] configured with operator routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints (the change-password step authorizes via purpose token)
	router.Post("/login", handler.login)
	router.Post("/change-password", handler.changePassword)

	// Voluntary rotation for operators past first login
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdministrative)
		r.Post("/password", handler.changeOwnPassword)
	})

	// Super-admin management endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSuperAdmin)
		r.Post("/", handler.createAdmin)
		r.Get("/", handler.listAdmins)
		r.Post("/{id}/deactivate", handler.deactivateAdmin)
		r.Post("/{id}/reset-credentials", handler.resetCredentials)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	AdminID  string `json:"admin_id"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	ChangeToken     string `json:"change_token"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type changeOwnPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type createAdminRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Field identifiers for validation in the operator domain.
const (
	fieldAdminID         = "admin_id"
	fieldPassword        = "password"
	fieldChangeToken     = "change_token"
	fieldCurrentPassword = "current_password"
	fieldNewPassword     = "new_password"
	fieldEmail           = "email"
	fieldFirstName       = "first_name"
	fieldLastName        = "last_name"
	fieldAccessToken     = "access_token"
	fieldUser            = "user"
)

/*
Login authenticates an operator by admin code.

POST /api/v1/admin/login

Response:
  - 200: Session, or the password-change handshake on first login
  - 401: INVALID_CREDENTIALS / ACCOUNT_LOCKED / CREDENTIALS_EXPIRED
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldAdminID, input.AdminID)
	validator.Required(fieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.adminService.Login(
		request.Context(),
		input.AdminID,
		input.Password,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if outcome.PasswordChangeRequired {
		respond.OK(writer, "Password change required before first use", map[string]any{
			"code":                     apperr.CodePasswordChangeNeeded,
			"password_change_required": true,
			"change_token":             outcome.ChangeToken,
		})
		return
	}

	handler.setRefreshCookie(writer, outcome)
	respond.OK(writer, "Login successful", map[string]any{
		fieldAccessToken: outcome.Session.AccessToken,
		fieldUser:        outcome.Session.Identity,
	})
}

/*
ChangePassword completes the forced first-login rotation.

POST /api/v1/admin/change-password

Response:
  - 200: Session: The operator's first full session
  - 401: Invalid change token or temporary password
  - 409: PASSWORD_REUSE
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	var input changePasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldChangeToken, input.ChangeToken).
		Required(fieldCurrentPassword, input.CurrentPassword).
		Required(fieldNewPassword, input.NewPassword).
		Password(fieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.adminService.ChangePassword(
		request.Context(),
		input.ChangeToken,
		input.CurrentPassword,
		input.NewPassword,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, "Password updated", map[string]any{
		fieldAccessToken: session.AccessToken,
		fieldUser:        session.Identity,
	})
}

/*
ChangeOwnPassword rotates the password of the authenticated operator.

POST /api/v1/admin/password

Response:
  - 200: Session: A fresh session under the new password
  - 401: Wrong current password
  - 409: PASSWORD_REUSE
*/
func (handler *Handler) changeOwnPassword(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeOwnPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldCurrentPassword, input.CurrentPassword).
		Required(fieldNewPassword, input.NewPassword).
		Password(fieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.adminService.ChangeOwnPassword(
		request.Context(),
		identityID,
		input.CurrentPassword,
		input.NewPassword,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, "Password updated", map[string]any{
		fieldAccessToken: session.AccessToken,
		fieldUser:        session.Identity,
	})
}

/*
CreateAdmin provisions a new operator account.

POST /api/v1/admin

Response:
  - 201: CreatedAdmin (temp password included only when delivery failed)
  - 409: USER_ALREADY_EXISTS
*/
func (handler *Handler) createAdmin(writer http.ResponseWriter, request *http.Request) {
	var input createAdminRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmail, input.Email).
		Email(fieldEmail, input.Email).
		Required(fieldFirstName, input.FirstName).
		Required(fieldLastName, input.LastName)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.adminService.CreateAdmin(request.Context(), CreateAdminInput{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, "Administrator provisioned", created)
}

/*
ListAdmins returns every operator account.

GET /api/v1/admin
*/
func (handler *Handler) listAdmins(writer http.ResponseWriter, request *http.Request) {
	admins, err := handler.adminService.ListAdmins(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Administrators", admins)
}

/*
DeactivateAdmin disables an operator account.

POST /api/v1/admin/{id}/deactivate
*/
func (handler *Handler) deactivateAdmin(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.Param(request, "id")

	if err := handler.adminService.DeactivateAdmin(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ResetCredentials re-issues temporary credentials for an operator.

POST /api/v1/admin/{id}/reset-credentials
*/
func (handler *Handler) resetCredentials(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.Param(request, "id")

	reset, err := handler.adminService.ResetAdminCredentials(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Temporary credentials re-issued", reset)
}

// # Transport Helpers

// setRefreshCookie injects the scoped refresh token cookie for a full session.
func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, outcome *LoginOutcome) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    outcome.Session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  outcome.Session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// getClientIP tries to extract the real IP address of a user over proxy environments.
func getClientIP(request *http.Request) string {

	ip := request.Header.Get("X-Real-IP")
	if ip == "" {
		ip = request.Header.Get("X-Forwarded-For")
	}

	if ip == "" {
		ip = request.RemoteAddr
	}
	return ip
}
