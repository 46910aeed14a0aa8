// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package verification implements the supplier verification workflow.

A buyer who wants to sell on the marketplace files an application: a resumable
draft, a submission, an operator review, and a terminal decision. The workflow
is a one-way state machine:

	draft -> pending -> under_review -> verified | rejected

Terminal records are never mutated into new attempts; reapplication after the
rejection cooldown creates a fresh record, preserving the full history.
*/
package verification

import (
	"time"
)

// # Workflow States

// Status is the lifecycle state of one supplier application.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
)

// Terminal reports whether the status is a final decision.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// # Domain Entities

// DocumentRef points at one uploaded evidence document in object storage.
type DocumentRef struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

// Verification represents one supplier application.
type Verification struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`

	// Fields is the structured application payload (company details, tax
	// information). Stored as jsonb so the application form can evolve
	// without schema migrations.
	Fields map[string]any `json:"fields"`

	Documents []DocumentRef `json:"documents,omitempty"`
	Status    Status        `json:"status"`

	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewerID      string     `json:"reviewer_id,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is the resumable pre-submission state of an application.
//
// Drafts live in their own table keyed one per identity; saving merges the
// incoming fields over what is already stored, so a multi-step form can
// write each step independently.
type Draft struct {
	IdentityID string         `json:"identity_id"`
	Fields     map[string]any `json:"fields"`
	Documents  []DocumentRef  `json:"documents,omitempty"`
	Step       int            `json:"step"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// # Field Identifiers

const (
	FieldFields = "fields"
	FieldStep   = "step"
	FieldReason = "reason"
	FieldNotes  = "notes"
	FieldFile   = "file"
	FieldKind   = "kind"
)
