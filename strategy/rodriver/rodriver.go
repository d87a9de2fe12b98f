// Package rodriver adapts a go-rod browser to the strategy.Renderer
// capability. It owns the browser lifecycle; the rendered strategy only
// issues commands against it.
package rodriver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configure the launched browser.
type Options struct {
	Headless  bool
	UserAgent string
	// Proxy is a host:port the browser routes through; empty means direct.
	Proxy string
}

// Driver is a single-page rod session implementing strategy.Renderer.
type Driver struct {
	browser *rod.Browser
	page    *rod.Page
}

// New launches a browser and opens its working page.
func New(opts Options) (*Driver, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			browser.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return &Driver{browser: browser, page: page}, nil
}

func (d *Driver) Load(ctx context.Context, url string) error {
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return page.WaitLoad()
}

func (d *Driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := d.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	return el.WaitVisible()
}

func (d *Driver) Sleep(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Close shuts the browser down, releasing the session on every exit path.
func (d *Driver) Close() error {
	return d.browser.Close()
}
