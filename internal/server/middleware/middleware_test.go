package middleware

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

func newLogHelper() (*pkglog.LogHelper, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "msg"}), zapcore.AddSync(buf), zapcore.DebugLevel)
	return pkglog.NewLogHelper(pkglog.NewKratosAdapter(zap.New(core))), buf
}

func serve(t *testing.T, srv *http.Server, req *nethttp.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCaller_InjectsRequestContext(t *testing.T) {
	logger, buf := newLogHelper()
	srv := http.NewServer(http.Middleware(Caller(), Logging(logger)))

	var got *pkglog.RequestContext
	srv.Route("/").GET("/probe", func(ctx http.Context) error {
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			got = pkglog.GetRequestContext(ctx)
			return map[string]string{"ok": "true"}, nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	req := httptest.NewRequest(nethttp.MethodGet, "/probe", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	req.Header.Set(HeaderCallerID, "user-7")
	req.Header.Set(HeaderCallerTier, " PRO ")
	req.Header.Set(HeaderRepositoryID, "repo-3")
	rec := serve(t, srv, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, "user-7", got.CallerID)
	assert.Equal(t, "pro", got.Tier)
	assert.Equal(t, "repo-3", got.RepositoryID)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestCaller_GeneratesRequestID(t *testing.T) {
	srv := http.NewServer(http.Middleware(Caller()))

	var got string
	srv.Route("/").GET("/probe", func(ctx http.Context) error {
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			got = pkglog.GetRequestID(ctx)
			return nil, nil
		})
		_, err := h(ctx, nil)
		return err
	})

	rec := serve(t, srv, httptest.NewRequest(nethttp.MethodGet, "/probe", nil))

	assert.Len(t, got, 36)
	assert.Equal(t, got, rec.Header().Get(HeaderRequestID))
}

func TestLogging_RecordsErrorStatus(t *testing.T) {
	logger, buf := newLogHelper()
	srv := http.NewServer(http.Middleware(Caller(), Logging(logger)))

	srv.Route("/").GET("/fail", func(ctx http.Context) error {
		h := ctx.Middleware(func(context.Context, interface{}) (interface{}, error) {
			return nil, errors.New(429, "QUOTA_EXCEEDED_DAILY_USER", "quota exceeded")
		})
		_, err := h(ctx, nil)
		return err
	})

	rec := serve(t, srv, httptest.NewRequest(nethttp.MethodGet, "/fail", nil))

	assert.Equal(t, 429, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"status":429`)
	assert.Contains(t, out, `"reason":"QUOTA_EXCEEDED_DAILY_USER"`)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(nethttp.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	assert.Equal(t, "1.1.1.1", extractClientIP(req))

	req.Header.Set("X-Real-IP", "3.3.3.3")
	assert.Equal(t, "3.3.3.3", extractClientIP(req))
}

func TestExtractHTTPStatus(t *testing.T) {
	assert.Equal(t, 200, extractHTTPStatus(nil))
	assert.Equal(t, 503, extractHTTPStatus(errors.ServiceUnavailable("UPSTREAM_UNAVAILABLE", "down")))
	assert.Equal(t, 500, extractHTTPStatus(assert.AnError))
	assert.True(t, strings.HasPrefix(errors.Reason(errors.BadRequest("INVALID_REQUEST", "x")), "INVALID"))
}
