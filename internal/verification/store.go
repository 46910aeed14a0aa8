// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package verification

import (
	"context"
)

// # Verification Data Access

// VerificationRepository defines the data access contract for supplier
// applications and their drafts.
type VerificationRepository interface {

	/*
		SaveDraft upserts the identity's draft, merging the incoming fields
		over the stored ones so partial form steps accumulate.

		Parameters:
		  - context: context.Context
		  - identityID: string
		  - fields: map[string]any
		  - step: int

		Returns:
		  - *Draft: The draft after the merge
		  - error: Persistence failures
	*/
	SaveDraft(context context.Context, identityID string, fields map[string]any, step int) (*Draft, error)

	/*
		GetDraft returns the identity's draft.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - *Draft: Hydrated draft
		  - error: apperr.NotFound or retrieval failures
	*/
	GetDraft(context context.Context, identityID string) (*Draft, error)

	/*
		AppendDraftDocument records an uploaded document on the draft.

		Parameters:
		  - context: context.Context
		  - identityID: string
		  - document: DocumentRef

		Returns:
		  - error: Persistence failures
	*/
	AppendDraftDocument(context context.Context, identityID string, document DocumentRef) error

	/*
		DeleteDraft removes the identity's draft after submission.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - error: Persistence failures
	*/
	DeleteDraft(context context.Context, identityID string) error

	/*
		CreateSubmission inserts a pending application. A partial unique
		index allows at most one non-terminal application per identity, so
		two racing submissions cannot both land.

		Parameters:
		  - context: context.Context
		  - verification: *Verification

		Returns:
		  - error: apperr.Conflict (REQUEST_PENDING) when a non-terminal
		    application already exists, or persistence failures
	*/
	CreateSubmission(context context.Context, verification *Verification) error

	/*
		FindByID returns the application with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Verification: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByID(context context.Context, id string) (*Verification, error)

	/*
		FindLatestByIdentity returns the identity's newest application.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - *Verification: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindLatestByIdentity(context context.Context, identityID string) (*Verification, error)

	/*
		ListByStatus returns applications in the given state, oldest first,
		for the review queue.

		Parameters:
		  - context: context.Context
		  - status: Status
		  - limit: int

		Returns:
		  - []*Verification: Hydrated entities
		  - error: Retrieval failures
	*/
	ListByStatus(context context.Context, status Status, limit int) ([]*Verification, error)

	/*
		MarkUnderReview moves a pending application to under_review.

		Parameters:
		  - context: context.Context
		  - id: string
		  - reviewerID: string
		  - notes: string

		Returns:
		  - error: apperr.Conflict when the application is not pending,
		    or persistence failures
	*/
	MarkUnderReview(context context.Context, id string, reviewerID string, notes string) error

	/*
		Approve finalizes a non-terminal application as verified and
		activates the supplier role on the identity row in the same
		transaction: both happen or neither does.

		Parameters:
		  - context: context.Context
		  - id: string
		  - reviewerID: string
		  - notes: string

		Returns:
		  - *Verification: The application after the decision
		  - error: apperr.Conflict (ALREADY_VERIFIED on re-decide),
		    or persistence failures
	*/
	Approve(context context.Context, id string, reviewerID string, notes string) (*Verification, error)

	/*
		Reject finalizes a non-terminal application as rejected.

		Parameters:
		  - context: context.Context
		  - id: string
		  - reviewerID: string
		  - reason: string

		Returns:
		  - *Verification: The application after the decision
		  - error: apperr.Conflict on re-decide, or persistence failures
	*/
	Reject(context context.Context, id string, reviewerID string, reason string) (*Verification, error)
}
