// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package admin_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/admin"
	"github.com/procuramarket/procura/internal/platform/apperr"
)

/*
TestHandler_Login_FirstLoginHandshake verifies the wire shape of the forced
rotation: the response carries the machine-readable code and the change
token, and no session material.
*/
func TestHandler_Login_FirstLoginHandshake(t *testing.T) {
	f := newFixture(t)
	f.seedOperator(t, "op-8", "PRC-HT34LQ", "temp-Secret1", true)

	router := admin.NewHandler(f.service).Routes()

	body := `{"admin_id":"PRC-HT34LQ","password":"temp-Secret1"}`
	request := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	payload := recorder.Body.String()
	assert.Contains(t, payload, apperr.CodePasswordChangeNeeded)
	assert.Contains(t, payload, "change_token")
	assert.NotContains(t, payload, "access_token")
}
