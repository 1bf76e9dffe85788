package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vinayprograms/warden/internal/permission"
)

// maxBody caps how much of a response http_get reads.
const maxBody = 1 << 20

type httpGet struct {
	client *http.Client
}

func newHTTPGet(timeout time.Duration) *httpGet {
	return &httpGet{client: &http.Client{Timeout: timeout}}
}

func (t *httpGet) Name() string              { return "http_get" }
func (t *httpGet) Action() permission.Action { return permission.ActionNetwork }
func (t *httpGet) Resource(args map[string]interface{}) (string, error) {
	raw, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("http_get: invalid url %q", raw)
	}
	return u.String(), nil
}

// Call fetches the URL. HTML bodies are reduced to their visible text.
func (t *httpGet) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	target, err := t.Resource(args)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("http_get: reading body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http_get: %s returned %s", target, resp.Status)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return htmlText(string(body)), nil
	}
	return string(body), nil
}

// htmlText returns the text content of doc, skipping script and style elements.
func htmlText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var (
		parts []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
