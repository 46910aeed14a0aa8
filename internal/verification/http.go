// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package verification

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procuramarket/procura/internal/platform/middleware"
	requestutil "github.com/procuramarket/procura/internal/platform/request"
	"github.com/procuramarket/procura/internal/platform/respond"
	"github.com/procuramarket/procura/internal/platform/validate"
)

// MaxDocumentBytes caps one uploaded evidence document at 10 MiB.
const MaxDocumentBytes = 10 << 20

// # Definitions & Constructors

// Handler implements the supplier verification HTTP endpoints.
type Handler struct {
	verificationService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{verificationService: service}
}

// Routes returns a [chi.Router] configured with verification routes.
//
// # Endpoints
//
// Applicant side (authenticated):
//   - PUT  /draft           : Save a form step into the draft.
//   - GET  /draft           : Resume the draft.
//   - POST /draft/documents : Upload one evidence document.
//   - POST /submit          : Turn the draft into a pending application.
//   - GET  /me              : Latest application status.
//
// Review side (operator):
//   - GET  /pending, /{id}, /{id}/documents
//   - POST /{id}/review, /{id}/approve, /{id}/reject
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Put("/draft", handler.saveDraft)
		r.Get("/draft", handler.getDraft)
		r.Post("/draft/documents", handler.uploadDocument)
		r.Post("/submit", handler.submit)
		r.Get("/me", handler.latest)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdministrative)
		r.Get("/pending", handler.listPending)
		r.Get("/{id}", handler.get)
		r.Get("/{id}/documents", handler.documents)
		r.Post("/{id}/review", handler.markUnderReview)
		r.Post("/{id}/approve", handler.approve)
		r.Post("/{id}/reject", handler.reject)
	})

	return router
}

// # Request Payloads

type saveDraftRequest struct {
	Fields map[string]any `json:"fields"`
	Step   int            `json:"step"`
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

/*
SaveDraft merges a form step into the caller's application draft.

PUT /api/v1/verification/draft

Request:
  - Body: saveDraftRequest (Fields, Step)

Response:
  - 200: Draft: The draft after the merge
  - 403: Forbidden: COOLDOWN_ACTIVE or ADMIN_EXCLUSIVE
  - 409: Conflict: REQUEST_PENDING, UNDER_REVIEW, or ALREADY_VERIFIED
*/
func (handler *Handler) saveDraft(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input saveDraftRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Custom(FieldFields, len(input.Fields) == 0, "At least one field is required").
		Custom(FieldStep, input.Step < 1, "Must be 1 or greater")

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	draft, err := handler.verificationService.SaveDraft(request.Context(), identityID, input.Fields, input.Step)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Draft saved", draft)
}

/*
GetDraft returns the caller's resumable draft.

GET /api/v1/verification/draft

Response:
  - 200: Draft
  - 404: NotFound: No draft saved yet
*/
func (handler *Handler) getDraft(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	draft, err := handler.verificationService.GetDraft(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Draft retrieved", draft)
}

/*
UploadDocument stores one evidence document against the caller's draft.

POST /api/v1/verification/draft/documents

Request:
  - Multipart form: file (document bytes), kind (optional label)

Response:
  - 201: DocumentRef: Stored document key and URL
  - 400: ValidationError: Missing or oversized file
*/
func (handler *Handler) uploadDocument(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := request.ParseMultipartForm(MaxDocumentBytes); err != nil {
		respond.Error(writer, request, validate.RequiredError(FieldFile, "A multipart file upload is required"))
		return
	}

	file, header, err := request.FormFile(FieldFile)
	if err != nil {
		respond.Error(writer, request, validate.RequiredError(FieldFile, "A multipart file upload is required"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, MaxDocumentBytes+1))
	if err != nil {
		respond.Error(writer, request, validate.RequiredError(FieldFile, "The file could not be read"))
		return
	}
	if len(data) > MaxDocumentBytes {
		respond.Error(writer, request, validate.RequiredError(FieldFile, "The file exceeds the 10 MiB limit"))
		return
	}

	document, err := handler.verificationService.UploadDocument(
		request.Context(),
		identityID,
		data,
		header.Header.Get("Content-Type"),
		request.FormValue(FieldKind),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, "Document uploaded", document)
}

/*
Submit turns the caller's draft into a pending application.

POST /api/v1/verification/submit

Response:
  - 201: Verification: The pending application
  - 400: ValidationError: No draft saved
  - 409: Conflict: REQUEST_PENDING (including the double-submit race)
*/
func (handler *Handler) submit(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	verification, err := handler.verificationService.Submit(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, "Application submitted", verification)
}

/*
Latest returns the caller's newest application.

GET /api/v1/verification/me

Response:
  - 200: Verification
  - 404: NotFound: Never applied
*/
func (handler *Handler) latest(writer http.ResponseWriter, request *http.Request) {
	identityID, err := requestutil.RequiredIdentityID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	verification, err := handler.verificationService.LatestForIdentity(request.Context(), identityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Application retrieved", verification)
}

// # Review Endpoints

/*
ListPending returns the oldest pending applications.

GET /api/v1/verification/pending

Response:
  - 200: []Verification
*/
func (handler *Handler) listPending(writer http.ResponseWriter, request *http.Request) {
	verifications, err := handler.verificationService.ListPending(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Pending applications retrieved", verifications)
}

/*
Get returns one application for review.

GET /api/v1/verification/{id}

Response:
  - 200: Verification
  - 404: NotFound
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	verification, err := handler.verificationService.Get(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Application retrieved", verification)
}

/*
Documents returns short-lived download links for an application's evidence.

GET /api/v1/verification/{id}/documents

Response:
  - 200: []DocumentRef with presigned URLs
*/
func (handler *Handler) documents(writer http.ResponseWriter, request *http.Request) {
	documents, err := handler.verificationService.PresignDocuments(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Document links generated", documents)
}

/*
MarkUnderReview claims a pending application.

POST /api/v1/verification/{id}/review

Request:
  - Body: reviewRequest (Notes)

Response:
  - 200: Verification
  - 409: Conflict: Not pending
*/
func (handler *Handler) markUnderReview(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input reviewRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	verification, err := handler.verificationService.MarkUnderReview(
		request.Context(), requestutil.Param(request, "id"), claims.IdentityID, input.Notes)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Application moved to review", verification)
}

/*
Approve finalizes an application as verified and activates the supplier role.

POST /api/v1/verification/{id}/approve

Request:
  - Body: reviewRequest (Notes)

Response:
  - 200: Verification
  - 409: Conflict: ALREADY_VERIFIED on re-approve
*/
func (handler *Handler) approve(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input reviewRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	verification, err := handler.verificationService.Approve(
		request.Context(), requestutil.Param(request, "id"), claims.IdentityID, input.Notes)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Application approved", verification)
}

/*
Reject finalizes an application as rejected. The reason is mandatory.

POST /api/v1/verification/{id}/reject

Request:
  - Body: rejectRequest (Reason)

Response:
  - 200: Verification
  - 400: ValidationError: Missing reason
  - 409: Conflict: Already decided
*/
func (handler *Handler) reject(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input rejectRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldReason, input.Reason)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verification, err := handler.verificationService.Reject(
		request.Context(), requestutil.Param(request, "id"), claims.IdentityID, input.Reason)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, "Application rejected", verification)
}
