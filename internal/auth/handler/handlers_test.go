package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medshare/internal/auth/handler/mocks"
	"medshare/internal/auth/models"
	dErrors "medshare/pkg/domain-errors"
)

type AuthHandlerSuite struct {
	suite.Suite
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) TestHandleLogin() {
	s.Run("returns bearer token", func() {
		handler, mockService := newTestHandler(s.T())
		expires := time.Date(2026, 4, 1, 9, 15, 0, 0, time.UTC)
		mockService.EXPECT().Login(gomock.Any(), models.LoginRequest{
			Identity: "patient@example.com",
			Password: "pw",
		}).Return(&models.LoginResult{
			AccessToken: "jwt",
			TokenType:   "Bearer",
			ExpiresAt:   expires,
			Identity:    "patient@example.com",
			Role:        models.RolePatient,
		}, nil)

		w := httptest.NewRecorder()
		newRouter(handler).ServeHTTP(w, newLoginRequest(`{"email":" Patient@Example.com ","password":"pw"}`))

		s.Equal(http.StatusOK, w.Code)
		var resp LoginResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("jwt", resp.AccessToken)
		s.Equal("PATIENT", resp.Role)
		s.True(resp.ExpiresAt.Equal(expires))
	})

	s.Run("locked account is distinct from bad credentials", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAccountLocked, "account temporarily locked"))

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newLoginRequest(`{"email":"patient@example.com","password":"pw"}`))
		s.assertStatusAndError(w, http.StatusLocked, "account_locked")
	})

	s.Run("bad credentials", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newLoginRequest(`{"email":"patient@example.com","password":"nope"}`))
		s.assertStatusAndError(w, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("missing password never reaches the service", func() {
		handler, _ := newTestHandler(s.T())
		w := httptest.NewRecorder()
		handler.HandleLogin(w, newLoginRequest(`{"email":"patient@example.com"}`))
		s.assertStatusAndError(w, http.StatusBadRequest, "bad_request")
	})

	s.Run("malformed email", func() {
		handler, _ := newTestHandler(s.T())
		w := httptest.NewRecorder()
		handler.HandleLogin(w, newLoginRequest(`{"email":"not-an-email","password":"pw"}`))
		s.assertStatusAndError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("invalid json", func() {
		handler, _ := newTestHandler(s.T())
		w := httptest.NewRecorder()
		handler.HandleLogin(w, newLoginRequest(`{`))
		s.assertStatusAndError(w, http.StatusBadRequest, "bad_request")
	})
}

func newTestHandler(t *testing.T) (*Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mockService, logger), mockService
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func newLoginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (s *AuthHandlerSuite) assertStatusAndError(w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	s.Equal(expectedStatus, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(expectedCode, resp["error"])
}
