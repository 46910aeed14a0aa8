// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procuramarket/procura/internal/platform/middleware"
	requestutil "github.com/procuramarket/procura/internal/platform/request"
	"github.com/procuramarket/procura/internal/platform/respond"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements identity-related HTTP endpoints.
type Handler struct {
	identityService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{identityService: service}
}

// Routes returns a [chi.Router] configured with identity-specific routes.
//
// # Endpoints
//   - GET  /me                    : Current account profile.
//   - GET  /me/supplier-access    : Live supplier access check.
//   - GET  /me/supplier-request   : Pre-flight check before applying.
//   - Operator routes under /{id} : Force role grants, removals, deactivation.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
		r.Get("/me/supplier-access", handler.supplierAccess)
		r.Get("/me/supplier-request", handler.supplierRequest)
	})

	// Role mutation bypasses the verification workflow, so it is reserved
	// for super admins; account status toggles stay at the admin level.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSuperAdmin)
		r.Post("/{id}/roles", handler.grantRole)
		r.Delete("/{id}/roles/{role}", handler.revokeRole)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdministrative)
		r.Post("/{id}/deactivate", handler.deactivate)
		r.Post("/{id}/reactivate", handler.reactivate)
	})

	return router
}

// # Request Payloads

type grantRoleRequest struct {
	Role string `json:"role"`
}

/*
Me returns the authenticated account's profile.

GET /api/v1/identity/me

Response:
  - 200: Projection: Sanitized account profile
  - 401: Unauthorized: Authentication required
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	identity, err := handler.identityService.Get(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Profile retrieved", identity.Sanitized())
}

/*
SupplierAccess reports whether the account can operate as a supplier right now.

GET /api/v1/identity/me/supplier-access

Response:
  - 200: Access: Role membership plus live verification status
*/
func (handler *Handler) supplierAccess(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	access, err := handler.identityService.SupplierAccess(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Supplier access evaluated", access)
}

/*
SupplierRequest pre-checks whether a new supplier application would be accepted.

GET /api/v1/identity/me/supplier-request

Response:
  - 200: Decision: Allowed, or denial code with cooldown hint
*/
func (handler *Handler) supplierRequest(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	decision, err := handler.identityService.SupplierRequestDecision(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Request eligibility evaluated", decision)
}

/*
GrantRole force-grants a role to an account, bypassing normal acquisition.

POST /api/v1/identity/{id}/roles

Request:
  - Body: grantRoleRequest (Role)

Response:
  - 200: Projection: Account after the grant
  - 409: Conflict: ADMIN_EXCLUSIVE when the grant would break exclusivity
*/
func (handler *Handler) grantRole(writer http.ResponseWriter, request *http.Request) {
	var input grantRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	role, err := sec.ParseRole(input.Role)
	if err != nil {
		respond.Error(writer, request, validate.RequiredError(FieldRole, "Unknown role"))
		return
	}

	identity, err := handler.identityService.GrantRole(request.Context(), requestutil.Param(request, "id"), role)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Role granted", identity.Sanitized())
}

/*
RevokeRole removes a role from an account.

DELETE /api/v1/identity/{id}/roles/{role}

Response:
  - 200: Projection: Account after the removal
  - 409: Conflict: LAST_ROLE when the role is the only one held
*/
func (handler *Handler) revokeRole(writer http.ResponseWriter, request *http.Request) {
	role, err := sec.ParseRole(requestutil.Param(request, "role"))
	if err != nil {
		respond.Error(writer, request, validate.RequiredError(FieldRole, "Unknown role"))
		return
	}

	identity, err := handler.identityService.RevokeRole(request.Context(), requestutil.Param(request, "id"), role)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Role removed", identity.Sanitized())
}

/*
Deactivate disables an account so every state-bearing flow rejects it.

POST /api/v1/identity/{id}/deactivate

Response:
  - 204: No Content
*/
func (handler *Handler) deactivate(writer http.ResponseWriter, request *http.Request) {
	if err := handler.identityService.SetActive(request.Context(), requestutil.Param(request, "id"), false); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

/*
Reactivate re-enables a previously deactivated account.

POST /api/v1/identity/{id}/reactivate

Response:
  - 204: No Content
*/
func (handler *Handler) reactivate(writer http.ResponseWriter, request *http.Request) {
	if err := handler.identityService.SetActive(request.Context(), requestutil.Param(request, "id"), true); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}
