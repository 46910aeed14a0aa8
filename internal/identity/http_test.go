// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/identity/identitytest"
	"github.com/procuramarket/procura/internal/platform/ctxutil"
	"github.com/procuramarket/procura/internal/platform/sec"
)

/*
TestHandler_RoleMutationGuards verifies that role mutation is reserved for
super admins while account status toggles remain available to any operator.
*/
func TestHandler_RoleMutationGuards(t *testing.T) {
	repo := identitytest.NewFakeRepository()
	policy := identity.NewPolicy(repo, stubStatusReader{})
	router := identity.NewHandler(identity.NewService(repo, policy)).Routes()

	roles, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)
	repo.Seed(&identity.Identity{
		ID:         "id-1",
		Email:      "buyer@example.com",
		Roles:      roles,
		IsVerified: true,
		IsActive:   true,
	})

	grant := func(claims *sec.AuthClaims) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/id-1/roles", strings.NewReader(`{"role":"supplier"}`))
		request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		return recorder
	}

	t.Run("admin cannot mutate roles", func(t *testing.T) {
		recorder := grant(&sec.AuthClaims{IdentityID: "adm-1", ActiveRole: "admin"})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("super admin can mutate roles", func(t *testing.T) {
		claims := &sec.AuthClaims{IdentityID: "sup-1", ActiveRole: "super_admin", IsSuperAdmin: true}
		recorder := grant(claims)
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"supplier"`)
	})

	t.Run("admin can toggle account status", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/id-1/deactivate", nil)
		claims := &sec.AuthClaims{IdentityID: "adm-1", ActiveRole: "admin"}
		request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})
}
