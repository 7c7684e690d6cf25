package middleware

import (
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("log redaction", func() {
	It("masks credentials at any depth", func() {
		body := redactBody("application/json",
			[]byte(`{"email":"a@b.io","password":"pw","nested":[{"refresh_token":"t"}]}`))
		Expect(body).To(ContainSubstring(`"email":"a@b.io"`))
		Expect(body).NotTo(ContainSubstring(`"pw"`))
		Expect(body).NotTo(ContainSubstring(`"t"`))
		Expect(strings.Count(body, redactedValue)).To(Equal(2))
	})

	It("summarizes non-JSON and oversized bodies", func() {
		Expect(redactBody("text/plain", []byte("password=x"))).To(Equal("[10 bytes text/plain]"))
		Expect(redactBody("", make([]byte, maxLoggedBody+1))).To(ContainSubstring("omitted"))
	})

	It("masks authorization headers", func() {
		h := http.Header{}
		h.Set("Authorization", "Bearer abc")
		h.Set("X-Trace-ID", "t1")
		out := redactHeaders(h)
		Expect(out["Authorization"]).To(Equal(redactedValue))
		Expect(out["X-Trace-Id"]).To(Equal("t1"))
	})
})
