package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/dto"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
)

type responseFormServiceMock struct {
	view      *dto.ResponseFormView
	result    *dto.SubmitResponseResult
	formErr   error
	submitErr error
}

func (m *responseFormServiceMock) Form(ctx context.Context, secret string) (*dto.ResponseFormView, error) {
	if m.formErr != nil {
		return nil, m.formErr
	}
	return m.view, nil
}

func (m *responseFormServiceMock) Submit(ctx context.Context, secret string, payload dto.SubmitResponsePayload, clientIP string) (*dto.SubmitResponseResult, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.result, nil
}

func performFetch(mock *responseFormServiceMock) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	handler := NewResponseFormHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/response-forms/secret-a", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "secret", Value: "secret-a"}}
	handler.Fetch(c)
	return w
}

func performSubmit(mock *responseFormServiceMock, payload interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	handler := NewResponseFormHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest(http.MethodPost, "/response-forms/secret-a", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "secret", Value: "secret-a"}}
	handler.Submit(c)
	return w
}

func TestResponseFormFetchOK(t *testing.T) {
	w := performFetch(&responseFormServiceMock{view: &dto.ResponseFormView{
		RequestID:    "req-1",
		BuildingName: "North Hall",
		ExpiresAt:    time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "North Hall")
}

func TestResponseFormTokenTaxonomyStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"unknown token", appErrors.ErrTokenNotFound, http.StatusNotFound, "TOKEN_NOT_FOUND"},
		{"expired token", appErrors.ErrTokenExpired, http.StatusGone, "TOKEN_EXPIRED"},
		{"consumed token", appErrors.ErrTokenAlreadyUsed, http.StatusConflict, "TOKEN_ALREADY_USED"},
		{"window closed", appErrors.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := performFetch(&responseFormServiceMock{formErr: tc.err})
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestResponseFormSubmitCreated(t *testing.T) {
	w := performSubmit(&responseFormServiceMock{result: &dto.SubmitResponseResult{
		RequestID:  "req-1",
		BuildingID: "bld-a",
	}}, dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{{EquipmentID: "eq-x", AvailableQuantity: 3}}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "req-1")
}

func TestResponseFormSubmitRaceLoserConflict(t *testing.T) {
	w := performSubmit(&responseFormServiceMock{submitErr: appErrors.ErrTokenAlreadyUsed},
		dto.SubmitResponsePayload{Items: []dto.ResponseItemPayload{{EquipmentID: "eq-x", AvailableQuantity: 3}}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_ALREADY_USED")
}

func TestResponseFormSubmitMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewResponseFormHandler(&responseFormServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/response-forms/secret-a", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "secret", Value: "secret-a"}}
	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
