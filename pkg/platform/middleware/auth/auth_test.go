package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"certledger/pkg/domain"
	"certledger/pkg/requestcontext"
)

type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*JWTClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingHandler struct {
	called bool
	ctx    context.Context
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

// AuthMiddlewareSuite guards the invariant that an unauthenticated request
// never reaches a handler.
type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockJWTValidator
	next      *recordingHandler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.next = &recordingHandler{}
}

func (s *AuthMiddlewareSuite) TearDownTest() {
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareSuite) serve(authHeader string) *httptest.ResponseRecorder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequireAuth(s.validator, logger)(s.next)
	req := httptest.NewRequest(http.MethodGet, "/certificates/x", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestValidToken() {
	s.validator.On("ValidateToken", "good").
		Return(&JWTClaims{Subject: "registrar@uni.example", Role: "Issuer", JTI: "j1"}, nil)

	w := s.serve("Bearer good")

	s.Require().True(s.next.called)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("registrar@uni.example", requestcontext.Subject(s.next.ctx))
	s.Equal(domain.RoleIssuer, requestcontext.Role(s.next.ctx))
}

func (s *AuthMiddlewareSuite) TestRejectedTokens() {
	s.Run("missing header", func() {
		s.next.called = false
		w := s.serve("")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("wrong scheme", func() {
		s.next.called = false
		w := s.serve("Basic dXNlcjpwYXNz")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("blank bearer", func() {
		s.next.called = false
		w := s.serve("Bearer   ")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("validator error", func() {
		s.next.called = false
		s.validator.On("ValidateToken", "expired").Return(nil, errors.New("token expired")).Once()
		w := s.serve("Bearer expired")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "Invalid or expired token")
	})

	s.Run("unknown role", func() {
		s.next.called = false
		s.validator.On("ValidateToken", "odd").
			Return(&JWTClaims{Subject: "x", Role: "superuser"}, nil).Once()
		w := s.serve("Bearer odd")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("empty subject", func() {
		s.next.called = false
		s.validator.On("ValidateToken", "anon").
			Return(&JWTClaims{Subject: " ", Role: "holder"}, nil).Once()
		w := s.serve("Bearer anon")
		s.False(s.next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}
