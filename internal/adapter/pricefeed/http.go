package pricefeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// getJSON performs a GET and decodes a 2xx JSON body into out.
// 404 maps to domain.ErrSymbolNotFound, anything else that fails to
// domain.ErrFeedUnavailable. A canceled or expired ctx is returned as is.
func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrapf(domain.ErrFeedUnavailable, "%s build request: %v", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s request", provider)
		}
		return errors.Wrapf(domain.ErrFeedUnavailable, "%s request: %v", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(domain.ErrSymbolNotFound, "%s status %d", provider, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Wrapf(domain.ErrFeedUnavailable, "%s status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "%s decode", provider)
		}
		return errors.Wrapf(domain.ErrFeedUnavailable, "%s decode: %v", provider, err)
	}
	return nil
}
