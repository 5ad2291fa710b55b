package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
)

// Error reasons returned to callers.
const (
	ReasonInvalidRequest      = "INVALID_REQUEST"
	ReasonQuotaExceededPrefix = "QUOTA_EXCEEDED_"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ReasonInternal            = "INTERNAL"
)

// toServiceError maps domain errors to Kratos errors carrying an HTTP code
// and a machine-readable reason.
func toServiceError(err error) error {
	if err == nil {
		return nil
	}

	var quotaErr *biz.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return kerrors.New(429, ReasonQuotaExceededPrefix+strings.ToUpper(quotaErr.QuotaType), quotaErr.Error()).
			WithMetadata(map[string]string{
				"quota_type": quotaErr.QuotaType,
				"limit":      fmt.Sprint(quotaErr.Limit),
				"current":    fmt.Sprint(quotaErr.Current),
				"requested":  fmt.Sprint(quotaErr.Requested),
			})
	}

	if errors.Is(err, biz.ErrInvalidRequest) {
		return kerrors.BadRequest(ReasonInvalidRequest, err.Error())
	}

	var clientErr *biz.AIClientError
	if errors.As(err, &clientErr) || biz.IsCircuitOpen(err) {
		return kerrors.ServiceUnavailable(ReasonUpstreamUnavailable, err.Error()).WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return kerrors.GatewayTimeout(ReasonUpstreamTimeout, err.Error())
	}

	return kerrors.InternalServer(ReasonInternal, err.Error())
}
