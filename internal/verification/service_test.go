// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package verification_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/identity/identitytest"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/blob"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/internal/verification"
)

// fakeVerificationRepo is a map-backed VerificationRepository that enforces
// the same single-open-application constraint as the partial unique index.
type fakeVerificationRepo struct {
	mu         sync.Mutex
	drafts     map[string]*verification.Draft
	records    map[string]*verification.Verification
	identities *identitytest.FakeRepository
}

func newFakeVerificationRepo(identities *identitytest.FakeRepository) *fakeVerificationRepo {
	return &fakeVerificationRepo{
		drafts:     make(map[string]*verification.Draft),
		records:    make(map[string]*verification.Verification),
		identities: identities,
	}
}

func (f *fakeVerificationRepo) SaveDraft(_ context.Context, identityID string, fields map[string]any, step int) (*verification.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	draft, ok := f.drafts[identityID]
	if !ok {
		draft = &verification.Draft{IdentityID: identityID, Fields: map[string]any{}}
		f.drafts[identityID] = draft
	}
	for key, value := range fields {
		draft.Fields[key] = value
	}
	draft.Step = step
	draft.UpdatedAt = time.Now()
	return draft, nil
}

func (f *fakeVerificationRepo) GetDraft(_ context.Context, identityID string) (*verification.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.drafts[identityID]
	if !ok {
		return nil, apperr.NotFound("Application draft")
	}
	return draft, nil
}

func (f *fakeVerificationRepo) AppendDraftDocument(_ context.Context, identityID string, document verification.DocumentRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.drafts[identityID]
	if !ok {
		draft = &verification.Draft{IdentityID: identityID, Fields: map[string]any{}}
		f.drafts[identityID] = draft
	}
	draft.Documents = append(draft.Documents, document)
	return nil
}

func (f *fakeVerificationRepo) DeleteDraft(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, identityID)
	return nil
}

func (f *fakeVerificationRepo) CreateSubmission(_ context.Context, record *verification.Verification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.records {
		if existing.IdentityID == record.IdentityID && !existing.Status.Terminal() {
			return apperr.Conflict("A supplier application is already awaiting review").
				WithCode(apperr.CodeRequestPending)
		}
	}

	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeVerificationRepo) FindByID(_ context.Context, id string) (*verification.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, apperr.NotFound("Verification")
	}
	clone := *record
	return &clone, nil
}

func (f *fakeVerificationRepo) FindLatestByIdentity(_ context.Context, identityID string) (*verification.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []*verification.Verification
	for _, record := range f.records {
		if record.IdentityID == identityID {
			matches = append(matches, record)
		}
	}
	if len(matches) == 0 {
		return nil, apperr.NotFound("Verification")
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	clone := *matches[0]
	return &clone, nil
}

func (f *fakeVerificationRepo) ListByStatus(_ context.Context, status verification.Status, limit int) ([]*verification.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []*verification.Verification
	for _, record := range f.records {
		if record.Status == status {
			clone := *record
			matches = append(matches, &clone)
		}
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeVerificationRepo) MarkUnderReview(_ context.Context, id string, reviewerID string, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok {
		return apperr.NotFound("Verification")
	}
	if record.Status != verification.StatusPending {
		return apperr.Conflict("This application is already under review").
			WithCode(apperr.CodeUnderReview)
	}
	record.Status = verification.StatusUnderReview
	record.ReviewerID = reviewerID
	record.ReviewNotes = notes
	return nil
}

func (f *fakeVerificationRepo) Approve(ctx context.Context, id string, reviewerID string, notes string) (*verification.Verification, error) {
	f.mu.Lock()

	record, ok := f.records[id]
	if !ok {
		f.mu.Unlock()
		return nil, apperr.NotFound("Verification")
	}
	if record.Status.Terminal() {
		f.mu.Unlock()
		return nil, apperr.Conflict("This application has already been approved").
			WithCode(apperr.CodeAlreadyVerified)
	}

	now := time.Now()
	record.Status = verification.StatusVerified
	record.ReviewerID = reviewerID
	record.ReviewNotes = notes
	record.ReviewedAt = &now
	clone := *record
	f.mu.Unlock()

	// Mirrors the store transaction: the decision activates the role.
	_ = f.identities.AddRole(ctx, record.IdentityID, sec.RoleSupplier)
	return &clone, nil
}

func (f *fakeVerificationRepo) Reject(_ context.Context, id string, reviewerID string, reason string) (*verification.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok {
		return nil, apperr.NotFound("Verification")
	}
	if record.Status.Terminal() {
		return nil, apperr.Conflict("This application has already been rejected")
	}

	now := time.Now()
	record.Status = verification.StatusRejected
	record.ReviewerID = reviewerID
	record.RejectionReason = reason
	record.ReviewedAt = &now
	clone := *record
	return &clone, nil
}

// fakeBlobStore records uploads in memory.
type fakeBlobStore struct {
	objects int
}

func (f *fakeBlobStore) Put(_ context.Context, _ []byte, _ string, pathHint string) (blob.Object, error) {
	f.objects++
	key := fmt.Sprintf("verification/%s/%d", pathHint, f.objects)
	return blob.Object{Key: key, URL: "https://files.procura.market/" + key}, nil
}

func (f *fakeBlobStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.procura.market/" + key, nil
}

// newTestService wires a verification service over in-memory fakes.
func newTestService(t *testing.T) (*verification.Service, *fakeVerificationRepo, *identitytest.FakeRepository) {
	t.Helper()

	identities := identitytest.NewFakeRepository()
	repo := newFakeVerificationRepo(identities)
	policy := identity.NewPolicy(identities, verification.NewStatusAdapter(repo))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := verification.NewService(repo, identities, policy, &fakeBlobStore{}, notify.NewLogNotifier(logger), logger)
	return service, repo, identities
}

func seedBuyer(t *testing.T, identities *identitytest.FakeRepository, id string) {
	t.Helper()
	roles, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)
	identities.Seed(&identity.Identity{
		ID:         id,
		Email:      id + "@example.com",
		Roles:      roles,
		IsVerified: true,
		IsActive:   true,
	})
}

/*
TestService_Submit verifies that submitting a draft creates a pending
application, records the supplier role, and consumes the draft.
*/
func TestService_Submit(t *testing.T) {
	service, _, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-1")
	ctx := context.Background()

	_, err := service.SaveDraft(ctx, "buyer-1", map[string]any{"company_name": "Acme Trading"}, 1)
	require.NoError(t, err)

	submitted, err := service.Submit(ctx, "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, verification.StatusPending, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, "Acme Trading", submitted.Fields["company_name"])

	// The supplier role is recorded but not usable until approval
	record, err := identities.FindByID(ctx, "buyer-1")
	require.NoError(t, err)
	assert.True(t, record.Roles.Has(sec.RoleSupplier))

	// The draft was consumed
	_, err = service.GetDraft(ctx, "buyer-1")
	assert.Error(t, err)
}

/*
TestService_Submit_RequiresDraft verifies that submitting without a saved
draft fails with a validation error.
*/
func TestService_Submit_RequiresDraft(t *testing.T) {
	service, _, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-2")

	_, err := service.Submit(context.Background(), "buyer-2")
	assert.True(t, apperr.HasCode(err, "VALIDATION_ERROR"))
}

/*
TestService_Submit_SecondSubmissionBlocked verifies the single open
application rule: a second submission while one awaits review fails with
REQUEST_PENDING, the same answer the unique index gives a racing submit.
*/
func TestService_Submit_SecondSubmissionBlocked(t *testing.T) {
	service, _, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-3")
	ctx := context.Background()

	_, err := service.SaveDraft(ctx, "buyer-3", map[string]any{"company_name": "Acme"}, 1)
	require.NoError(t, err)
	_, err = service.Submit(ctx, "buyer-3")
	require.NoError(t, err)

	// Even drafting again is blocked while the application is open
	_, err = service.SaveDraft(ctx, "buyer-3", map[string]any{"company_name": "Acme"}, 1)
	assert.True(t, apperr.HasCode(err, apperr.CodeRequestPending))

	_, err = service.Submit(ctx, "buyer-3")
	assert.True(t, apperr.HasCode(err, apperr.CodeRequestPending))
}

/*
TestService_ReviewLifecycle verifies pending -> under_review -> verified,
including the ALREADY_VERIFIED answer on a repeated approval.
*/
func TestService_ReviewLifecycle(t *testing.T) {
	service, _, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-4")
	ctx := context.Background()

	_, err := service.SaveDraft(ctx, "buyer-4", map[string]any{"company_name": "Acme"}, 1)
	require.NoError(t, err)
	submitted, err := service.Submit(ctx, "buyer-4")
	require.NoError(t, err)

	claimed, err := service.MarkUnderReview(ctx, submitted.ID, "admin-1", "checking registry")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusUnderReview, claimed.Status)

	approved, err := service.Approve(ctx, submitted.ID, "admin-1", "all documents valid")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, approved.Status)
	assert.NotNil(t, approved.ReviewedAt)

	// Re-deciding a terminal application is a conflict
	_, err = service.Approve(ctx, submitted.ID, "admin-1", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyVerified))
}

/*
TestService_Reject verifies the mandatory reason and the cooldown that a
rejection starts.
*/
func TestService_Reject(t *testing.T) {
	service, repo, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-5")
	ctx := context.Background()

	_, err := service.SaveDraft(ctx, "buyer-5", map[string]any{"company_name": "Acme"}, 1)
	require.NoError(t, err)
	submitted, err := service.Submit(ctx, "buyer-5")
	require.NoError(t, err)

	// 1. A reason is mandatory
	_, err = service.Reject(ctx, submitted.ID, "admin-1", "")
	assert.True(t, apperr.HasCode(err, "VALIDATION_ERROR"))

	// 2. Rejection is terminal and stores the reason
	rejected, err := service.Reject(ctx, submitted.ID, "admin-1", "Tax certificate is expired")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRejected, rejected.Status)
	assert.Equal(t, "Tax certificate is expired", rejected.RejectionReason)

	// 3. Reapplying inside the 30-day window is blocked with a countdown
	_, err = service.SaveDraft(ctx, "buyer-5", map[string]any{"company_name": "Acme"}, 1)
	assert.True(t, apperr.HasCode(err, apperr.CodeCooldownActive))

	// 4. Once the rejection ages past the window, a fresh application opens
	//    a new record; the rejected one is never mutated.
	stale := time.Now().Add(-31 * 24 * time.Hour)
	repo.records[submitted.ID].ReviewedAt = &stale

	_, err = service.SaveDraft(ctx, "buyer-5", map[string]any{"company_name": "Acme"}, 1)
	require.NoError(t, err)
	fresh, err := service.Submit(ctx, "buyer-5")
	require.NoError(t, err)

	assert.NotEqual(t, submitted.ID, fresh.ID)
	preserved, err := service.Get(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRejected, preserved.Status)
}

/*
TestService_UploadDocument verifies document storage with the slugged path
hint and the draft bookkeeping.
*/
func TestService_UploadDocument(t *testing.T) {
	service, _, identities := newTestService(t)
	seedBuyer(t, identities, "buyer-6")
	ctx := context.Background()

	_, err := service.SaveDraft(ctx, "buyer-6", map[string]any{"company_name": "Červená Hvězda"}, 1)
	require.NoError(t, err)

	document, err := service.UploadDocument(ctx, "buyer-6", []byte("%PDF-1.7"), "application/pdf", "tax_certificate")
	require.NoError(t, err)

	assert.Contains(t, document.Key, "cervena-hvezda")
	assert.Equal(t, "tax_certificate", document.Kind)

	draft, err := service.GetDraft(ctx, "buyer-6")
	require.NoError(t, err)
	require.Len(t, draft.Documents, 1)
	assert.Equal(t, document.Key, draft.Documents[0].Key)
}

/*
TestStatusAdapter verifies the policy projection, including the zero state
for identities that never applied.
*/
func TestStatusAdapter(t *testing.T) {
	identities := identitytest.NewFakeRepository()
	repo := newFakeVerificationRepo(identities)
	adapter := verification.NewStatusAdapter(repo)

	state, err := adapter.LatestState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, identity.VerificationState{}, state)
}
