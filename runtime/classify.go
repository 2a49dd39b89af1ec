package runtime

import (
	"net/http"
	"strings"

	"github.com/routecodex/routecodex/types"
)

// MapHTTPError maps an upstream HTTP status code to a *types.Error
// carrying the spec §7 HTTP_<n> code, generalizing the teacher's
// providers.MapHTTPError (same status-code switch and quota-keyword
// sniffing on 400s) to emit the stable HTTP_<n> taxonomy instead of a
// fixed llm.ErrorCode enum, since the spec requires the exact status be
// visible to clients and snapshots.
func MapHTTPError(status int, msg string, runtimeKey string) *types.Error {
	base := types.NewError(types.HTTPErrorCode(status), msg).
		WithHTTPStatus(status).WithProvider(runtimeKey)

	switch status {
	case http.StatusUnauthorized:
		return base
	case http.StatusForbidden:
		return base
	case http.StatusTooManyRequests:
		return base.WithRetryable(true)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(runtimeKey)
		}
		return base
	case http.StatusPaymentRequired, http.StatusInternalServerError, 524:
		return base // fatal per spec §4.2: daily-limit/payment/ISE/cloudflare-timeout
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return base.WithRetryable(true)
	case 529:
		return base.WithRetryable(true)
	default:
		return base.WithRetryable(status >= 500)
	}
}

// ClassifyError maps a *types.Error (or a raw transport error) into the
// ErrorClass the vrouter cooldown FSM reacts to. A 429 is ambiguous by
// status code alone — the spec distinguishes short-term throttling from
// a daily quota reset by the error message's content, same as the
// teacher's quota-keyword sniff on 400s.
func ClassifyError(err error) string {
	e, ok := err.(*types.Error)
	if !ok {
		return "transient"
	}
	switch e.HTTPStatus {
	case http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(e.Message), "day") || strings.Contains(strings.ToLower(e.Message), "daily") {
			return "rate_limit_daily"
		}
		return "rate_limit_short"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "auth"
	case http.StatusPaymentRequired, http.StatusInternalServerError, 524:
		return "fatal_http"
	default:
		if e.HTTPStatus >= 500 {
			return "transient"
		}
		return "fatal_http"
	}
}
