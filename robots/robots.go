// Package robots answers "may this URL be fetched" from each host's
// robots.txt. Policies are fetched once per host and cached for the run.
package robots

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
)

const cacheSize = 64

// Checker caches per-host robots.txt decisions. A disabled checker allows
// everything; so does a host whose robots.txt cannot be fetched or parsed.
type Checker struct {
	enabled   bool
	userAgent string
	client    *http.Client
	cache     *lru.Cache[string, *robotstxt.RobotsData]
}

// NewChecker builds a checker. client may be nil, in which case
// http.DefaultClient is used.
func NewChecker(enabled bool, userAgent string, client *http.Client) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	cache, _ := lru.New[string, *robotstxt.RobotsData](cacheSize)
	return &Checker{
		enabled:   enabled,
		userAgent: userAgent,
		client:    client,
		cache:     cache,
	}
}

// Allowed reports whether target may be fetched under the run's user agent.
func (c *Checker) Allowed(target string) bool {
	if c == nil || !c.enabled {
		return true
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return true
	}

	data, ok := c.cache.Get(parsed.Host)
	if !ok {
		data = c.fetch(parsed)
		c.cache.Add(parsed.Host, data)
	}
	if data == nil {
		return true
	}

	group := data.FindGroup(c.userAgent)
	allowed := group.Test(parsed.RequestURI())
	if !allowed {
		slog.Warn("disallowed by robots.txt",
			slog.String("url", target),
			slog.String("user_agent", c.userAgent),
		)
	}
	return allowed
}

// fetch retrieves and parses a host's robots.txt. A nil return means the
// host imposes no restrictions we can read, so fetching is allowed.
func (c *Checker) fetch(page *url.URL) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", page.Scheme, page.Host)
	req, err := http.NewRequest(http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("robots.txt fetch failed", slog.String("url", robotsURL), slog.Any("error", err))
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		slog.Debug("robots.txt parse failed", slog.String("url", robotsURL), slog.Any("error", err))
		return nil
	}
	return data
}
