package api

import (
	"context"
	"encoding/json"
	"fmt"

	"lol-dashboard/internal/domain"

	"github.com/valyala/fasthttp"
)

// do issues one request and hands back a copy of the response body plus the
// status code. inspect, when non-nil, sees the raw response before release
// (rate-limit header bookkeeping).
func do(ctx context.Context, hc *fasthttp.Client, method, url, auth string, payload any, inspect func(*fasthttp.Response)) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = hc.DoDeadline(req, resp, deadline)
	} else {
		err = hc.Do(req, resp)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	if inspect != nil {
		inspect(resp)
	}

	body := append([]byte(nil), resp.Body()...)
	return body, resp.StatusCode(), nil
}

// statusError maps upstream status codes onto the shared error taxonomy.
func statusError(status int) error {
	switch status {
	case fasthttp.StatusNotFound:
		return domain.ErrNotFound
	case fasthttp.StatusTooManyRequests:
		return domain.ErrRateLimited
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden:
		return domain.ErrUnauthorized
	case fasthttp.StatusPaymentRequired:
		return domain.ErrInsufficientCredits
	default:
		return fmt.Errorf("%w: status %d", domain.ErrUnavailable, status)
	}
}

func decode[T any](body []byte, status int) (*T, error) {
	if status != fasthttp.StatusOK {
		return nil, statusError(status)
	}
	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrUnavailable, err)
	}
	return &result, nil
}
