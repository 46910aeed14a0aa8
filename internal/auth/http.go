// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package auth provides the HTTP delivery layer for session issuance.

The handler acts as a thin mediation layer between the web and the domain
service:
  - Protocol: Standard RESTful JSON interface.
  - Security: Handles JWT orchestration and refresh token cookie injection.
  - Verification: Enforces strict input validation before passing to [Service].

This layer is strictly responsible for transport concerns (status codes,
headers, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/middleware"
	requestutil "github.com/procuramarket/procura/internal/platform/request"
	"github.com/procuramarket/procura/internal/platform/respond"
	"github.com/procuramarket/procura/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the session lifecycle entry
// points (Signup, Activation, Logins, Refresh, Role Switch, Recovery).
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/signup", handler.signup)
	router.Post("/verify-otp", handler.verifyOTP)
	router.Post("/login", handler.login)
	router.Post("/login/otp/request", handler.requestLoginOTP)
	router.Post("/login/otp/verify", handler.verifyLoginOTP)
	router.Post("/refresh", handler.refresh)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/logout-all", handler.logoutAll)
		r.Post("/switch-role", handler.switchRole)
	})

	return router
}

// # Request Payloads

type signupRequest struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

type requestOTPRequest struct {
	Identifier string `json:"identifier"`
}

type verifyLoginOTPRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
	Role       string `json:"role"`
}

type switchRoleRequest struct {
	Role     string `json:"role"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

/*
Signup handles the creation of a new marketplace identity.

POST /api/v1/auth/signup

Description: Validates input, checks for identity conflicts, persists an
unverified buyer, and dispatches the activation code. No tokens are issued.

Request:
  - Body: signupRequest (Email, Phone, Password, FirstName, LastName)

Response:
  - 201: Projection: Created identity
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email or phone already registered
*/
func (handler *Handler) signup(writer http.ResponseWriter, request *http.Request) {
	var input signupRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password).
		Required(FieldFirstName, input.FirstName).
		Required(FieldLastName, input.LastName)
	if input.Phone != "" {
		validator.Phone(FieldPhone, input.Phone)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	projection, err := handler.authService.Signup(request.Context(), SignupInput{
		Email:     input.Email,
		Phone:     input.Phone,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, "Account created. Check your inbox for the activation code.", projection)
}

/*
VerifyOTP activates an account and establishes the first session.

POST /api/v1/auth/verify-otp

Request:
  - Body: verifyOTPRequest (Identifier, OTP)

Response:
  - 200: Session: Access token and identity profile
  - 401: INVALID_OTP: Wrong or expired code
  - 409: ALREADY_VERIFIED: Account already activated
*/
func (handler *Handler) verifyOTP(writer http.ResponseWriter, request *http.Request) {
	var input verifyOTPRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		Required(FieldOTP, input.OTP).
		OTP(FieldOTP, input.OTP, OTPLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.VerifyOTP(
		request.Context(),
		input.Identifier,
		input.OTP,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session)
	respond.OK(writer, "Account activated", map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldUser:        session.Identity,
	})
}

/*
Login authenticates with a password and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, resolves the active role, generates JWT
access tokens, and injects a secure refresh token cookie into the response.
Multi-role identities that named no role receive the candidate list and no
tokens.

Request:
  - Body: loginRequest (Identifier, Password, Role)

Response:
  - 200: Session or role candidates
  - 401: INVALID_CREDENTIALS / ACCOUNT_LOCKED
  - 403: USER_NOT_VERIFIED / USER_INACTIVE
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.PasswordLogin(request.Context(), LoginInput{
		Identifier:    input.Identifier,
		Password:      input.Password,
		RequestedRole: input.Role,
		UserAgent:     request.UserAgent(),
		IPAddress:     getClientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.respondLoginResult(writer, result)
}

/*
RequestLoginOTP issues a login one-time code.

POST /api/v1/auth/login/otp/request

Request:
  - Body: requestOTPRequest (Identifier)

Response:
  - 200: Success: Code dispatched
  - 401: INVALID_CREDENTIALS / ACCOUNT_LOCKED
*/
func (handler *Handler) requestLoginOTP(writer http.ResponseWriter, request *http.Request) {
	var input requestOTPRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Identifier == "" {
		respond.Error(writer, request, validate.RequiredError(FieldIdentifier, "is required"))
		return
	}

	if err := handler.authService.RequestLoginOTP(request.Context(), input.Identifier); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "A login code has been sent", map[string]string{
		FieldMessage: "Check your inbox for the login code",
	})
}

/*
VerifyLoginOTP consumes a login code and establishes a session.

POST /api/v1/auth/login/otp/verify

Request:
  - Body: verifyLoginOTPRequest (Identifier, OTP, Role)

Response:
  - 200: Session or role candidates
  - 401: INVALID_OTP / ACCOUNT_LOCKED
*/
func (handler *Handler) verifyLoginOTP(writer http.ResponseWriter, request *http.Request) {
	var input verifyLoginOTPRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		Required(FieldOTP, input.OTP).
		OTP(FieldOTP, input.OTP, OTPLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.VerifyLoginOTP(
		request.Context(),
		input.Identifier,
		input.OTP,
		input.Role,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.respondLoginResult(writer, result)
}

/*
Refresh issues a new access token using a valid refresh token.

POST /api/v1/auth/refresh

Description: Rotates the session by validating the refresh token cookie
and issuing a fresh access token and an updated refresh token.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing or invalid refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.RefreshSession(
		request.Context(),
		cookie.Value,
		request.UserAgent(),
		getClientIP(request),
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session)
	respond.OK(writer, "Session refreshed", map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   AccessTokenTTL / time.Second,
	})
}

/*
SwitchRole re-keys the session to another held role.

POST /api/v1/auth/switch-role

Request:
  - Body: switchRoleRequest (Role, Password)

Response:
  - 200: Session: Fresh tokens under the new active role
  - 403: ROLE_NOT_HELD / ADMIN_EXCLUSIVE / SUPPLIER_NOT_VERIFIED
*/
func (handler *Handler) switchRole(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input switchRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Role == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRole, "is required"))
		return
	}

	var refreshToken string
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
		refreshToken = cookie.Value
	}

	session, err := handler.authService.SwitchRole(
		request.Context(),
		identityID,
		input.Role,
		input.Password,
		refreshToken,
		request.UserAgent(),
		getClientIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session)
	respond.OK(writer, "Active role updated", map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldUser:        session.Identity,
	})
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Description: Invalidates the refresh token (if present) and clears the
security cookies from the client.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)

	if err == nil && cookie != nil && cookie.Value != "" {
		_ = handler.authService.Logout(request.Context(), cookie.Value)
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
LogoutAll terminates every session of the authenticated identity.

POST /api/v1/auth/logout-all

Response:
  - 204: No Content: All sessions terminated
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.LogoutAll(request.Context(), identityID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Description: Sends a password reset link to the provided email if the account
exists. The response is identical either way.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 200: Success: Generic recovery message
  - 400: ErrInvalidJSON: Invalid email format
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	_, err := handler.authService.ForgotPassword(request.Context(), input.Email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Recovery initiated", map[string]string{
		FieldMessage: "If this email is registered, a reset link has been sent.",
	})
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Description: Validates the reset token and updates the identity's password.

Request:
  - Body: resetPasswordRequest (Token, NewPassword)

Response:
  - 200: Success: Password updated
  - 400: ErrInvalidJSON: Bad token or weak password
  - 409: PASSWORD_REUSE: New password matches the current one
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Password updated successfully", map[string]string{
		FieldMessage: "You can now log in with your new password",
	})
}

// # Transport Helpers

// respondLoginResult renders either the issued session or the role candidates.
func (handler *Handler) respondLoginResult(writer http.ResponseWriter, result *LoginResult) {
	if result.Session == nil {
		respond.OK(writer, "Select a role to continue", map[string]any{
			"code":             apperr.CodeRoleSelectionNeeded,
			FieldRoleSelection: true,
			FieldRoles:         result.RoleOptions,
		})
		return
	}

	handler.setRefreshCookie(writer, result.Session)
	respond.OK(writer, "Login successful", map[string]any{
		FieldAccessToken: result.Session.AccessToken,
		FieldUser:        result.Session.Identity,
	})
}

// setRefreshCookie injects the scoped, HTTP-only refresh token cookie.
func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh token cookie on the client.
func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
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
