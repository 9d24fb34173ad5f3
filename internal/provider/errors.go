package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/hejijunhao/statusreport/internal/connector/httpclient"
	"github.com/hejijunhao/statusreport/internal/errs"
)

// Wrap classifies a transport or decoding error from backend name into an
// *errs.ProviderError. Context errors pass through unchanged.
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errs.ErrLimiterClosed) {
		return err
	}
	var pe *errs.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	switch code := httpclient.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.NewProviderError(name, errs.AuthFailure, err)
	case code == http.StatusTooManyRequests:
		return errs.NewProviderError(name, errs.RateLimited, err)
	case code >= 400 && code < 500:
		return errs.NewProviderError(name, errs.InvalidResponse, err)
	}
	if errors.Is(err, errs.ErrParse) {
		return errs.NewProviderError(name, errs.InvalidResponse, err)
	}
	return errs.NewProviderError(name, errs.Unavailable, err)
}
