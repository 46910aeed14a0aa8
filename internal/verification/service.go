// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/blob"
	"github.com/procuramarket/procura/internal/platform/metrics"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/pkg/slug"
	"github.com/procuramarket/procura/pkg/uuid"
)

// PresignTTL is how long admin document links stay valid.
const PresignTTL = 15 * time.Minute

// PendingQueueLimit caps the review queue page size.
const PendingQueueLimit = 50

// # Service

// Service implements the supplier verification use cases.
type Service struct {
	verificationRepository VerificationRepository
	identityRepository     identity.IdentityRepository
	policy                 *identity.Policy
	blobStore              blob.Store
	notifier               notify.Notifier
	logger                 *slog.Logger
}

// NewService constructs a new verification [Service] with its dependencies.
func NewService(
	verificationRepo VerificationRepository,
	identityRepo identity.IdentityRepository,
	policy *identity.Policy,
	blobStore blob.Store,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		verificationRepository: verificationRepo,
		identityRepository:     identityRepo,
		policy:                 policy,
		blobStore:              blobStore,
		notifier:               notifier,
		logger:                 logger,
	}
}

// # Applicant Flow

/*
SaveDraft merges a partial application step into the identity's draft.

Description: The acquisition policy is applied up front so an identity inside
the rejection cooldown learns immediately instead of at submission time.

Parameters:
  - context: context.Context
  - identityID: string
  - fields: map[string]any
  - step: int

Returns:
  - *Draft: The draft after the merge
  - error: Coded policy denial or persistence failures
*/
func (service *Service) SaveDraft(context context.Context, identityID string, fields map[string]any, step int) (*Draft, error) {
	if err := service.checkCanApply(context, identityID); err != nil {
		return nil, err
	}

	return service.verificationRepository.SaveDraft(context, identityID, fields, step)
}

/*
GetDraft returns the identity's draft.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - *Draft: Hydrated draft
  - error: apperr.NotFound or retrieval failures
*/
func (service *Service) GetDraft(context context.Context, identityID string) (*Draft, error) {
	return service.verificationRepository.GetDraft(context, identityID)
}

/*
UploadDocument stores one evidence document and records it on the draft.

Description: The object path is prefixed with a slug of the draft's company
name when one is saved, which keeps the bucket browsable for reviewers.

Parameters:
  - context: context.Context
  - identityID: string
  - data: []byte
  - contentType: string
  - kind: string (free-form label, e.g. "tax_certificate")

Returns:
  - DocumentRef: The stored document's key and URL
  - error: Upload or persistence failures
*/
func (service *Service) UploadDocument(context context.Context, identityID string, data []byte, contentType, kind string) (DocumentRef, error) {
	if err := service.checkCanApply(context, identityID); err != nil {
		return DocumentRef{}, err
	}

	pathHint := identityID
	if draft, err := service.verificationRepository.GetDraft(context, identityID); err == nil {
		if name, ok := draft.Fields["company_name"].(string); ok && name != "" {
			pathHint = slug.From(name)
		}
	}

	object, err := service.blobStore.Put(context, data, contentType, pathHint)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("verification_service_upload_failed: %w", err)
	}

	document := DocumentRef{Key: object.Key, URL: object.URL, Kind: kind}
	if err := service.verificationRepository.AppendDraftDocument(context, identityID, document); err != nil {
		return DocumentRef{}, err
	}

	return document, nil
}

/*
Submit turns the identity's draft into a pending application.

Description: The policy pre-check handles the readable denials; the partial
unique index behind CreateSubmission closes the remaining double-submit race.
On success the supplier role is recorded on the identity (held but unusable
until approval) and the draft is deleted.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - *Verification: The pending application
  - error: Coded policy denial, missing draft, or persistence failures
*/
func (service *Service) Submit(context context.Context, identityID string) (*Verification, error) {
	if err := service.checkCanApply(context, identityID); err != nil {
		return nil, err
	}

	draft, err := service.verificationRepository.GetDraft(context, identityID)
	if err != nil {
		return nil, apperr.ValidationError("Save your application before submitting it")
	}

	now := time.Now()
	verification := &Verification{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Fields:      draft.Fields,
		Documents:   draft.Documents,
		Status:      StatusPending,
		SubmittedAt: &now,
	}

	if err := service.verificationRepository.CreateSubmission(context, verification); err != nil {
		return nil, err
	}

	// Record the role now; usability keys off the application status until
	// approval activates it.
	if err := service.identityRepository.AddRole(context, identityID, sec.RoleSupplier); err != nil {
		return nil, fmt.Errorf("verification_service_record_role_failed: %w", err)
	}

	if err := service.verificationRepository.DeleteDraft(context, identityID); err != nil {
		service.logger.WarnContext(context, "verification_draft_cleanup_failed",
			slog.String("identity_id", identityID),
			slog.Any("error", err),
		)
	}

	return verification, nil
}

/*
LatestForIdentity returns the identity's newest application.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - *Verification: Hydrated entity
  - error: apperr.NotFound or retrieval failures
*/
func (service *Service) LatestForIdentity(context context.Context, identityID string) (*Verification, error) {
	return service.verificationRepository.FindLatestByIdentity(context, identityID)
}

// # Review Flow

/*
Get returns an application for operator review.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Verification: Hydrated entity
  - error: apperr.NotFound or retrieval failures
*/
func (service *Service) Get(context context.Context, id string) (*Verification, error) {
	return service.verificationRepository.FindByID(context, id)
}

/*
ListPending returns the oldest pending applications for the review queue.

Parameters:
  - context: context.Context

Returns:
  - []*Verification: Hydrated entities
  - error: Retrieval failures
*/
func (service *Service) ListPending(context context.Context) ([]*Verification, error) {
	return service.verificationRepository.ListByStatus(context, StatusPending, PendingQueueLimit)
}

/*
PresignDocuments builds short-lived download links for an application's
evidence documents.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - []DocumentRef: Documents with presigned URLs
  - error: Retrieval or signing failures
*/
func (service *Service) PresignDocuments(context context.Context, id string) ([]DocumentRef, error) {
	verification, err := service.verificationRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	signed := make([]DocumentRef, 0, len(verification.Documents))
	for _, document := range verification.Documents {
		url, err := service.blobStore.Presign(context, document.Key, PresignTTL)
		if err != nil {
			return nil, fmt.Errorf("verification_service_presign_failed: %w", err)
		}
		signed = append(signed, DocumentRef{Key: document.Key, URL: url, Kind: document.Kind})
	}

	return signed, nil
}

/*
MarkUnderReview claims a pending application for review.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - notes: string

Returns:
  - *Verification: The application after the transition
  - error: apperr.Conflict or persistence failures
*/
func (service *Service) MarkUnderReview(context context.Context, id string, reviewerID string, notes string) (*Verification, error) {
	if err := service.verificationRepository.MarkUnderReview(context, id, reviewerID, notes); err != nil {
		return nil, err
	}
	return service.verificationRepository.FindByID(context, id)
}

/*
Approve finalizes an application as verified and activates the supplier role.

Description: The store commits the decision and the role activation together;
the approval notification is strictly best-effort afterwards and can never
roll the decision back.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - notes: string

Returns:
  - *Verification: The approved application
  - error: apperr.Conflict (ALREADY_VERIFIED on re-approve) or failures
*/
func (service *Service) Approve(context context.Context, id string, reviewerID string, notes string) (*Verification, error) {
	verification, err := service.verificationRepository.Approve(context, id, reviewerID, notes)
	if err != nil {
		return nil, err
	}

	metrics.VerificationDecision("verified")
	service.notifyDecision(context, verification.IdentityID, notify.TemplateVerificationApproved, map[string]string{
		"verification_id": verification.ID,
	})

	return verification, nil
}

/*
Reject finalizes an application as rejected.

Description: A non-empty reason is mandatory; it is stored for the applicant
and drives the cooldown window for reapplication.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - reason: string

Returns:
  - *Verification: The rejected application
  - error: Validation, apperr.Conflict, or persistence failures
*/
func (service *Service) Reject(context context.Context, id string, reviewerID string, reason string) (*Verification, error) {
	if reason == "" {
		return nil, apperr.ValidationError("A rejection reason is required",
			apperr.FieldError{Field: FieldReason, Message: "This field is required"})
	}

	verification, err := service.verificationRepository.Reject(context, id, reviewerID, reason)
	if err != nil {
		return nil, err
	}

	metrics.VerificationDecision("rejected")
	service.notifyDecision(context, verification.IdentityID, notify.TemplateVerificationRejected, map[string]string{
		"verification_id": verification.ID,
		"reason":          reason,
	})

	return verification, nil
}

// # Helpers

// checkCanApply maps the role lifecycle decision into coded API errors.
func (service *Service) checkCanApply(context context.Context, identityID string) error {
	decision, err := service.policy.CanRequestSupplierRole(context, identityID)
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}

	switch decision.Code {
	case apperr.CodeAdminExclusive:
		return apperr.Forbidden("Administrator accounts cannot apply for marketplace roles").
			WithCode(apperr.CodeAdminExclusive)
	case apperr.CodeRequestPending:
		return apperr.Conflict("A supplier application is already awaiting review").
			WithCode(apperr.CodeRequestPending)
	case apperr.CodeUnderReview:
		return apperr.Conflict("Your supplier application is under review").
			WithCode(apperr.CodeUnderReview)
	case apperr.CodeAlreadyVerified:
		return apperr.Conflict("Your supplier account is already verified").
			WithCode(apperr.CodeAlreadyVerified)
	case apperr.CodeCooldownActive:
		return apperr.Forbidden(fmt.Sprintf("You can reapply in %d days", decision.DaysRemaining)).
			WithCode(apperr.CodeCooldownActive)
	default:
		return apperr.Forbidden("A new supplier application is not allowed right now")
	}
}

// notifyDecision delivers a decision notification best-effort.
func (service *Service) notifyDecision(context context.Context, identityID, template string, data map[string]string) {
	applicant, err := service.identityRepository.FindByID(context, identityID)
	if err != nil {
		service.logger.WarnContext(context, "verification_notification_lookup_failed",
			slog.String("identity_id", identityID),
			slog.Any("error", err),
		)
		return
	}

	notify.BestEffort(context, service.notifier, service.logger, template, applicant.Email, data)
}

// # Policy Adapter

// StatusAdapter exposes the verification store through the
// [identity.StatusReader] contract the role lifecycle policy consumes.
type StatusAdapter struct {
	verificationRepository VerificationRepository
}

// NewStatusAdapter wraps a repository for policy consumption.
func NewStatusAdapter(verificationRepo VerificationRepository) *StatusAdapter {
	return &StatusAdapter{verificationRepository: verificationRepo}
}

// LatestState implements [identity.StatusReader].
func (adapter *StatusAdapter) LatestState(context context.Context, identityID string) (identity.VerificationState, error) {
	verification, err := adapter.verificationRepository.FindLatestByIdentity(context, identityID)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return identity.VerificationState{}, nil
		}
		return identity.VerificationState{}, err
	}

	return identity.VerificationState{
		Status:     string(verification.Status),
		ReviewedAt: verification.ReviewedAt,
	}, nil
}
