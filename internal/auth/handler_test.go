package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = ginkgo.Describe("Auth Handler", func() {
	var (
		handler   *Handler
		service   *Service
		seen      principal.Subject
		reached   bool
		protected http.Handler
	)

	ginkgo.BeforeEach(func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		tokenGen := NewJWTTokenGenerator(
			"handler-access-secret-handler-access", "handler-refresh-secret-handler-refresh",
			15*time.Minute, time.Hour)
		service = NewService(newMockUsers(), tokenGen, bcrypt.MinCost, slogger)
		handler = NewHandler(&transport.BaseHandler{Logger: slogger}, service)

		reached = false
		protected = handler.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			seen, _ = principal.FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	})

	accessToken := func(email string) string {
		tokens, err := service.Authenticate(context.Background(), LoginDTO{Email: email, Password: "correct_password"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return tokens.AccessToken
	}

	ginkgo.It("should login with valid credentials", func() {
		// Given
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"helper@farm.test","password":"correct_password"}`))
		w := httptest.NewRecorder()

		// When
		handler.Login(w, req)

		// Then
		gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(w.Body.String()).To(gomega.ContainSubstring("access_token"))
	})

	ginkgo.It("should answer 401 for a wrong password", func() {
		// Given
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"helper@farm.test","password":"nope"}`))
		w := httptest.NewRecorder()

		// When
		handler.Login(w, req)

		// Then
		gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
		gomega.Expect(w.Body.String()).To(gomega.ContainSubstring("INVALID_CREDENTIALS"))
	})

	ginkgo.It("should put the subject on the context", func() {
		// Given
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken("ops@ifarm.test"))
		req.Header.Set(DelegationHeader, "42")
		w := httptest.NewRecorder()

		// When
		protected.ServeHTTP(w, req)

		// Then
		gomega.Expect(w.Code).To(gomega.Equal(http.StatusNoContent))
		gomega.Expect(seen).To(gomega.Equal(principal.Subject{UserID: 3, TenantID: 20, SuperAdmin: true, ViaDelegationID: 42}))
	})

	ginkgo.It("should reject a missing or bad token", func() {
		// Given
		missing := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		bad := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		bad.Header.Set("Authorization", "Bearer not-a-token")

		for _, req := range []*http.Request{missing, bad} {
			w := httptest.NewRecorder()

			// When
			protected.ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
		}
		gomega.Expect(reached).To(gomega.BeFalse())
	})

	ginkgo.It("should reject a malformed delegation header", func() {
		// Given
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		req.Header.Set("Authorization", "Bearer "+accessToken("helper@farm.test"))
		req.Header.Set(DelegationHeader, "abc")
		w := httptest.NewRecorder()

		// When
		protected.ServeHTTP(w, req)

		// Then
		gomega.Expect(w.Code).To(gomega.Equal(http.StatusBadRequest))
		gomega.Expect(reached).To(gomega.BeFalse())
	})
})
