// Package websession is the authenticated web side of an account:
// session bootstrap, badge and inventory pages, trade offers, and the
// small actions the bots perform against the community site.
package websession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrSessionExpired marks responses that demand a fresh web session.
var ErrSessionExpired = errors.New("websession: session expired")

// Browser is a paced, retrying HTTP client bound to the community host.
// Transport errors and 5xx responses retry immediately up to the
// configured count; auth failures surface as ErrSessionExpired.
type Browser struct {
	log     *slog.Logger
	host    string
	client  *http.Client
	limiter *rate.Limiter
	retries int
}

// NewBrowser builds a browser for the given host ("https://..."), with
// requestsPerSecond <= 0 disabling pacing.
func NewBrowser(host string, timeout time.Duration, retries int, requestsPerSecond float64, log *slog.Logger) *Browser {
	jar, _ := cookiejar.New(nil)

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if retries < 1 {
		retries = 1
	}

	return &Browser{
		log:     log,
		host:    strings.TrimSuffix(host, "/"),
		client:  &http.Client{Jar: jar, Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retries: retries,
	}
}

// SetCookie stores a cookie for the community host.
func (b *Browser) SetCookie(name, value string) {
	u, err := url.Parse(b.host)
	if err != nil {
		return
	}
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Cookie returns the named cookie's value, or "".
func (b *Browser) Cookie(name string) string {
	u, err := url.Parse(b.host)
	if err != nil {
		return ""
	}
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *Browser) do(ctx context.Context, method, path string, query, form url.Values) (*http.Response, error) {
	target := b.host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < b.retries; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", path, err)
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, ErrSessionExpired
		case landedOnLogin(resp):
			resp.Body.Close()
			return nil, ErrSessionExpired
		case resp.StatusCode >= http.StatusInternalServerError:
			resp.Body.Close()
			lastErr = fmt.Errorf("status %s", resp.Status)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, path, b.retries, lastErr)
}

// The client follows redirects; a request that ends up on the login
// page means the session cookies no longer authenticate.
func landedOnLogin(resp *http.Response) bool {
	return resp.Request != nil && strings.HasPrefix(resp.Request.URL.Path, "/login")
}

// GetHTML fetches a page and parses it into a document.
func (b *Browser) GetHTML(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	resp, err := b.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// GetJSON fetches a JSON endpoint.
func (b *Browser) GetJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	resp, err := b.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return gjson.ParseBytes(data), nil
}

// PostJSON submits a form and parses the JSON reply.
func (b *Browser) PostJSON(ctx context.Context, path string, form url.Values) (gjson.Result, error) {
	resp, err := b.do(ctx, http.MethodPost, path, nil, form)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return gjson.ParseBytes(data), nil
}

// Head issues a fire-and-forget GET, discarding the body.
func (b *Browser) Head(ctx context.Context, path string, query url.Values) error {
	resp, err := b.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// successValue interprets the "success" field the community endpoints
// return, which is a bool on some and a result number on others.
func successValue(res gjson.Result) bool {
	v := res.Get("success")
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Int() == 1
	default:
		return false
	}
}
