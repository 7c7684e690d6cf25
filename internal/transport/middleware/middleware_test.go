package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/ifarm/api"
	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/frahmantamala/ifarm/internal/transport"
	"github.com/frahmantamala/ifarm/internal/transport/middleware"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDecider struct {
	decision access.Decision
	got      []access.Request
}

func (f *fakeDecider) Decide(_ context.Context, req access.Request) access.Decision {
	f.got = append(f.got, req)
	return f.decision
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func withSubject(r *http.Request, s principal.Subject) *http.Request {
	return r.WithContext(principal.WithSubject(r.Context(), s))
}

var _ = Describe("Middleware", func() {
	var base *transport.BaseHandler

	BeforeEach(func() {
		base = transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	Describe("RequireAccess", func() {
		var (
			decider *fakeDecider
			router  *chi.Mux
		)

		BeforeEach(func() {
			decider = &fakeDecider{}
			router = chi.NewRouter()
			router.With(middleware.RequireAccess(base, decider, permission.ActionView, permission.ResourceRole)).
				Get("/roles/{id}", ok)
		})

		It("should pass the subject and route id to the engine", func() {
			decider.decision = access.Decision{Allowed: true, Reason: access.ReasonGranted}
			req := withSubject(httptest.NewRequest(http.MethodGet, "/roles/7", nil), principal.Subject{UserID: 3, TenantID: 10})
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decider.got).To(HaveLen(1))
			Expect(decider.got[0].Subject.UserID).To(Equal(int64(3)))
			Expect(decider.got[0].Action).To(Equal(permission.ActionView))
			Expect(decider.got[0].Resource.Type).To(Equal(permission.ResourceRole))
			Expect(decider.got[0].Resource.ID).To(Equal("7"))
			Expect(decider.got[0].Environment.Time.IsZero()).To(BeFalse())
		})

		It("should answer 403 with the deny reason", func() {
			decider.decision = access.Decision{Reason: access.ReasonMissingPermission, Permission: "view_roles"}
			req := withSubject(httptest.NewRequest(http.MethodGet, "/roles/7", nil), principal.Subject{UserID: 3, TenantID: 10})
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusForbidden))
			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).To(Equal("ACCESS_DENIED"))
			Expect(body.Error.Details).To(HaveKeyWithValue("reason", access.ReasonMissingPermission))
			Expect(body.Error.Details).To(HaveKeyWithValue("permission", "view_roles"))
		})

		DescribeTable("should name the deny reason in the error code",
			func(reason, code string) {
				decider.decision = access.Decision{Reason: reason, Permission: "view_roles"}
				req := withSubject(httptest.NewRequest(http.MethodGet, "/roles/7", nil), principal.Subject{UserID: 3, TenantID: 10})
				rec := httptest.NewRecorder()

				router.ServeHTTP(rec, req)

				Expect(rec.Code).To(Equal(http.StatusForbidden))
				var body errorBody
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body.Error.Code).To(Equal(code))
				Expect(body.Error.Details).To(HaveKeyWithValue("reason", reason))
			},
			Entry("expired delegation", access.ReasonExpiredDelegation, "EXPIRED_DELEGATION_USED"),
			Entry("malformed environment", access.ReasonMalformedEnvironment, "MALFORMED_ENVIRONMENT"),
			Entry("cross tenant", access.ReasonCrossTenant, "CROSS_TENANT"),
			Entry("policy deny", access.ReasonPolicyDenied+":4", "ACCESS_DENIED"),
		)

		It("should answer 401 without a subject", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/7", nil))

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decider.got).To(BeEmpty())
		})
	})

	Describe("RequireSuperAdmin", func() {
		var handler http.Handler

		BeforeEach(func() {
			handler = middleware.RequireSuperAdmin(base)(ok)
		})

		It("should allow a super admin to read", func() {
			req := withSubject(httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil), principal.Subject{UserID: 1, SuperAdmin: true})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should refuse writes even for a super admin", func() {
			req := withSubject(httptest.NewRequest(http.MethodPost, "/admin/audit-logs", nil), principal.Subject{UserID: 1, SuperAdmin: true})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("should refuse tenant users", func() {
			req := withSubject(httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil), principal.Subject{UserID: 2, TenantID: 10})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("OpenAPIValidator", func() {
		var handler http.Handler

		BeforeEach(func() {
			validate, err := middleware.OpenAPIValidator(base, api.OpenAPI)
			Expect(err).NotTo(HaveOccurred())
			handler = validate(ok)
		})

		post := func(path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec
		}

		It("should pass a well formed decide request", func() {
			rec := post("/api/v1/access/decide", `{"action":"view","resource_type":"animal"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should reject a decide request without an action", func() {
			rec := post("/api/v1/access/decide", `{"resource_type":"animal"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a delegation with an unknown type", func() {
			rec := post("/api/v1/delegations", `{"delegate_user_id":2,"type":"forever","end_date":"2026-05-01T00:00:00Z"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should let undocumented paths through", func() {
			rec := post("/internal/debug", `not json`)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight for an allowed origin", func() {
			handler := middleware.CORS([]string{"https://app.ifarm.io"})(ok)
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/roles", nil)
			req.Header.Set("Origin", "https://app.ifarm.io")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.ifarm.io"))
		})

		It("should not echo an unknown origin", func() {
			handler := middleware.CORS([]string{"https://app.ifarm.io"})(ok)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
			req.Header.Set("Origin", "https://evil.example")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		})
	})

	Describe("RateLimit", func() {
		It("should limit each user separately", func() {
			handler := middleware.RateLimit(base, 2, time.Minute)(ok)
			call := func(userID int64) int {
				req := withSubject(httptest.NewRequest(http.MethodPost, "/api/v1/access/decide", nil), principal.Subject{UserID: userID, TenantID: 10})
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				return rec.Code
			}

			Expect(call(1)).To(Equal(http.StatusOK))
			Expect(call(1)).To(Equal(http.StatusOK))
			Expect(call(1)).To(Equal(http.StatusTooManyRequests))
			Expect(call(2)).To(Equal(http.StatusOK))
		})
	})

	Describe("RecoveryMiddleware", func() {
		It("should turn a panic into a 500 envelope", func() {
			handler := middleware.RecoveryMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(
				http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
			)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).NotTo(BeEmpty())
		})
	})

	Describe("RequestID", func() {
		It("should keep an incoming trace id", func() {
			handler := middleware.RequestID(ok)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(middleware.TraceHeader, "trace-123")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
		})

		It("should mint one when missing", func() {
			rec := httptest.NewRecorder()
			middleware.RequestID(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
		})
	})
})
