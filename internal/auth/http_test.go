// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/auth"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/sec"
)

/*
TestHandler_Login_RoleSelection verifies the wire shape of the multi-role
handshake: the response names the machine-readable code and the candidate
roles, and carries no token.
*/
func TestHandler_Login_RoleSelection(t *testing.T) {
	f := newFixture(t)
	f.seedVerified(t, "id-30", "dual@example.com", "Sunny-day1", sec.RoleBuyer, sec.RoleSupplier)

	router := auth.NewHandler(f.service).Routes()

	body := `{"identifier":"dual@example.com","password":"Sunny-day1"}`
	request := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	payload := recorder.Body.String()
	assert.Contains(t, payload, apperr.CodeRoleSelectionNeeded)
	assert.Contains(t, payload, auth.FieldRoleSelection)
	assert.Contains(t, payload, `"buyer"`)
	assert.Contains(t, payload, `"supplier"`)
	assert.NotContains(t, payload, auth.FieldAccessToken)

	// Naming the role completes the login on the same endpoint
	body = `{"identifier":"dual@example.com","password":"Sunny-day1","role":"buyer"}`
	request = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), auth.FieldAccessToken)
}
