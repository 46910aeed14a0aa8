// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// PostgreSQL implementation of the verification storage layer.
//
// # Concurrency
//
// The single-open-application rule is enforced by a partial unique index on
// supply.verification (identityid WHERE status IN ('pending','under_review')),
// so the database closes the double-submit race, not application code.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/dberr"
)

// # Verification Repository

// PostgresVerificationRepository implements the VerificationRepository interface using pgx.
type PostgresVerificationRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository creates a new PostgreSQL implementation of the VerificationRepository.
func NewVerificationRepository(pool *pgxpool.Pool) *PostgresVerificationRepository {
	return &PostgresVerificationRepository{pool: pool}
}

const verificationColumns = `
	id, identityid, fields, documents, status, submittedat, reviewedat,
	reviewerid, reviewnotes, rejectionreason, createdat, updatedat`

func scanVerification(row pgx.Row) (*Verification, error) {
	var (
		verification Verification
		reviewerID   *string
		reviewNotes  *string
		reason       *string
	)

	err := row.Scan(
		&verification.ID,
		&verification.IdentityID,
		&verification.Fields,
		&verification.Documents,
		&verification.Status,
		&verification.SubmittedAt,
		&verification.ReviewedAt,
		&reviewerID,
		&reviewNotes,
		&reason,
		&verification.CreatedAt,
		&verification.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reviewerID != nil {
		verification.ReviewerID = *reviewerID
	}
	if reviewNotes != nil {
		verification.ReviewNotes = *reviewNotes
	}
	if reason != nil {
		verification.RejectionReason = *reason
	}

	return &verification, nil
}

// # Draft Storage

/*
SaveDraft upserts the identity's draft with a jsonb field merge.

Description: The `fields || EXCLUDED.fields` merge means each form step only
sends its own keys; previously saved keys survive.

Parameters:
  - context: context.Context
  - identityID: string
  - fields: map[string]any
  - step: int

Returns:
  - *Draft: The draft after the merge
  - error: Execution errors
*/
func (repository *PostgresVerificationRepository) SaveDraft(context context.Context, identityID string, fields map[string]any, step int) (*Draft, error) {
	const query = `
		INSERT INTO supply.verification_draft (identityid, fields, documents, step, updatedat)
		VALUES ($1, $2, '[]'::jsonb, $3, NOW())
		ON CONFLICT (identityid) DO UPDATE
		SET fields = supply.verification_draft.fields || EXCLUDED.fields,
		    step = EXCLUDED.step,
		    updatedat = NOW()
		RETURNING identityid, fields, documents, step, updatedat`

	draft := &Draft{}
	err := repository.pool.QueryRow(context, query, identityID, fields, step).Scan(
		&draft.IdentityID,
		&draft.Fields,
		&draft.Documents,
		&draft.Step,
		&draft.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_save_draft_failed: %w", err)
	}

	return draft, nil
}

/*
GetDraft returns the identity's draft.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - *Draft: Hydrated draft
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresVerificationRepository) GetDraft(context context.Context, identityID string) (*Draft, error) {
	const query = `
		SELECT identityid, fields, documents, step, updatedat
		FROM supply.verification_draft
		WHERE identityid = $1`

	draft := &Draft{}
	err := repository.pool.QueryRow(context, query, identityID).Scan(
		&draft.IdentityID,
		&draft.Fields,
		&draft.Documents,
		&draft.Step,
		&draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Application draft")
		}
		return nil, fmt.Errorf("postgres_verification_repo_get_draft_failed: %w", err)
	}

	return draft, nil
}

/*
AppendDraftDocument records an uploaded document on the draft, creating the
draft row when the upload happens before the first field save.

Parameters:
  - context: context.Context
  - identityID: string
  - document: DocumentRef

Returns:
  - error: Execution errors
*/
func (repository *PostgresVerificationRepository) AppendDraftDocument(context context.Context, identityID string, document DocumentRef) error {
	const query = `
		INSERT INTO supply.verification_draft (identityid, fields, documents, step, updatedat)
		VALUES ($1, '{}'::jsonb, jsonb_build_array($2::jsonb), 1, NOW())
		ON CONFLICT (identityid) DO UPDATE
		SET documents = supply.verification_draft.documents || $2::jsonb,
		    updatedat = NOW()`

	_, err := repository.pool.Exec(context, query, identityID, document)
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_append_document_failed: %w", err)
	}
	return nil
}

/*
DeleteDraft removes the identity's draft.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresVerificationRepository) DeleteDraft(context context.Context, identityID string) error {
	const query = "DELETE FROM supply.verification_draft WHERE identityid = $1"
	_, err := repository.pool.Exec(context, query, identityID)
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_delete_draft_failed: %w", err)
	}
	return nil
}

// # Application Storage

/*
CreateSubmission inserts a pending application.

Description: The partial unique index uq_verification_open turns a racing
second submission into a unique violation, reported as REQUEST_PENDING.

Parameters:
  - context: context.Context
  - verification: *Verification

Returns:
  - error: apperr.Conflict (REQUEST_PENDING) or execution errors
*/
func (repository *PostgresVerificationRepository) CreateSubmission(context context.Context, verification *Verification) error {
	const query = `
		INSERT INTO supply.verification (
			id, identityid, fields, documents, status, submittedat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	if verification.CreatedAt.IsZero() {
		verification.CreatedAt = now
	}
	verification.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		verification.ID,
		verification.IdentityID,
		verification.Fields,
		verification.Documents,
		verification.Status,
		verification.SubmittedAt,
		verification.CreatedAt,
		verification.UpdatedAt,
	)

	if dberr.IsUniqueViolation(err) {
		return apperr.Conflict("A supplier application is already awaiting review").
			WithCode(apperr.CodeRequestPending)
	}
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an application by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Verification: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresVerificationRepository) FindByID(context context.Context, id string) (*Verification, error) {
	const query = `SELECT ` + verificationColumns + ` FROM supply.verification WHERE id = $1`

	verification, err := scanVerification(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Verification")
		}
		return nil, fmt.Errorf("postgres_verification_repo_find_by_id_failed: %w", err)
	}

	return verification, nil
}

/*
FindLatestByIdentity retrieves the identity's newest application.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - *Verification: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresVerificationRepository) FindLatestByIdentity(context context.Context, identityID string) (*Verification, error) {
	const query = `SELECT ` + verificationColumns + `
		FROM supply.verification
		WHERE identityid = $1
		ORDER BY createdat DESC
		LIMIT 1`

	verification, err := scanVerification(repository.pool.QueryRow(context, query, identityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Verification")
		}
		return nil, fmt.Errorf("postgres_verification_repo_find_latest_failed: %w", err)
	}

	return verification, nil
}

/*
ListByStatus returns applications in the given state, oldest first.

Parameters:
  - context: context.Context
  - status: Status
  - limit: int

Returns:
  - []*Verification: Hydrated entities
  - error: Execution errors
*/
func (repository *PostgresVerificationRepository) ListByStatus(context context.Context, status Status, limit int) ([]*Verification, error) {
	const query = `SELECT ` + verificationColumns + `
		FROM supply.verification
		WHERE status = $1
		ORDER BY submittedat ASC
		LIMIT $2`

	rows, err := repository.pool.Query(context, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var verifications []*Verification
	for rows.Next() {
		verification, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_verification_repo_list_scan_failed: %w", err)
		}
		verifications = append(verifications, verification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_list_rows_failed: %w", err)
	}

	return verifications, nil
}

// # Review Transitions

/*
MarkUnderReview moves a pending application to under_review.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - notes: string

Returns:
  - error: apperr.Conflict when the application is not pending,
    or execution errors
*/
func (repository *PostgresVerificationRepository) MarkUnderReview(context context.Context, id string, reviewerID string, notes string) error {
	const query = `
		UPDATE supply.verification
		SET status = 'under_review', reviewerid = $2, reviewnotes = $3, updatedat = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := repository.pool.Exec(context, query, id, reviewerID, notes)
	if err != nil {
		return fmt.Errorf("postgres_verification_repo_mark_under_review_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.transitionConflict(context, id)
	}
	return nil
}

/*
Approve finalizes a non-terminal application as verified and activates the
supplier role on the identity row in the same transaction.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - notes: string

Returns:
  - *Verification: The application after the decision
  - error: apperr.Conflict on re-decide or execution errors
*/
func (repository *PostgresVerificationRepository) Approve(context context.Context, id string, reviewerID string, notes string) (*Verification, error) {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_approve_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	const decide = `
		UPDATE supply.verification
		SET status = 'verified', reviewerid = $2, reviewnotes = $3,
		    reviewedat = NOW(), updatedat = NOW()
		WHERE id = $1 AND status IN ('pending', 'under_review')
		RETURNING ` + verificationColumns

	verification, err := scanVerification(transaction.QueryRow(context, decide, id, reviewerID, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.transitionConflict(context, id)
		}
		return nil, fmt.Errorf("postgres_verification_repo_approve_failed: %w", err)
	}

	// Role activation rides the same transaction: the application is never
	// verified while the identity row missed the role, or vice versa.
	const activate = `
		UPDATE users.identity
		SET roles = array_append(roles, 'supplier'), updatedat = NOW()
		WHERE id = $1 AND NOT ('supplier' = ANY(roles))`

	if _, err := transaction.Exec(context, activate, verification.IdentityID); err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_approve_activate_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return nil, fmt.Errorf("postgres_verification_repo_approve_commit_failed: %w", err)
	}

	return verification, nil
}

/*
Reject finalizes a non-terminal application as rejected.

Parameters:
  - context: context.Context
  - id: string
  - reviewerID: string
  - reason: string

Returns:
  - *Verification: The application after the decision
  - error: apperr.Conflict on re-decide or execution errors
*/
func (repository *PostgresVerificationRepository) Reject(context context.Context, id string, reviewerID string, reason string) (*Verification, error) {
	const query = `
		UPDATE supply.verification
		SET status = 'rejected', reviewerid = $2, rejectionreason = $3,
		    reviewedat = NOW(), updatedat = NOW()
		WHERE id = $1 AND status IN ('pending', 'under_review')
		RETURNING ` + verificationColumns

	verification, err := scanVerification(repository.pool.QueryRow(context, query, id, reviewerID, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.transitionConflict(context, id)
		}
		return nil, fmt.Errorf("postgres_verification_repo_reject_failed: %w", err)
	}

	return verification, nil
}

// transitionConflict explains why a state transition matched no row.
func (repository *PostgresVerificationRepository) transitionConflict(context context.Context, id string) error {
	current, err := repository.FindByID(context, id)
	if err != nil {
		return err
	}

	switch current.Status {
	case StatusVerified:
		return apperr.Conflict("This application has already been approved").
			WithCode(apperr.CodeAlreadyVerified)
	case StatusRejected:
		return apperr.Conflict("This application has already been rejected")
	case StatusUnderReview:
		return apperr.Conflict("This application is already under review").
			WithCode(apperr.CodeUnderReview)
	default:
		return apperr.Conflict("This application cannot transition from its current state")
	}
}
