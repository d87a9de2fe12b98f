package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"webharvest/config"
	"webharvest/models"
	"webharvest/selector"
)

func planFor(cfg *config.JobConfig) (*selector.Plan, error) {
	return selector.Compile(cfg.Selectors)
}

// fakeRenderer scripts a browser session: pages maps URLs to markup, and
// clicking the next control advances along nextOrder.
type fakeRenderer struct {
	pages      map[string]string
	current    string
	nextOrder  map[string]string
	loadErrs   map[string]int
	loads      int
	filled     map[string]string
	clicked    []string
	closed     bool
	visibleErr error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		pages:     make(map[string]string),
		nextOrder: make(map[string]string),
		loadErrs:  make(map[string]int),
		filled:    make(map[string]string),
	}
}

func (f *fakeRenderer) Load(ctx context.Context, url string) error {
	f.loads++
	if n := f.loadErrs[url]; n > 0 {
		f.loadErrs[url] = n - 1
		return errors.New("render timeout")
	}
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("no such page %s", url)
	}
	f.current = url
	return nil
}

func (f *fakeRenderer) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return f.visibleErr
}

func (f *fakeRenderer) Sleep(ctx context.Context, d time.Duration) {}

func (f *fakeRenderer) Fill(ctx context.Context, selector, value string) error {
	f.filled[selector] = value
	return nil
}

func (f *fakeRenderer) Click(ctx context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	next, ok := f.nextOrder[f.current]
	if !ok {
		return errors.New("element not found")
	}
	f.current = next
	return nil
}

func (f *fakeRenderer) HTML(ctx context.Context) (string, error) {
	return f.pages[f.current], nil
}

func (f *fakeRenderer) CurrentURL(ctx context.Context) (string, error) {
	return f.current, nil
}

func (f *fakeRenderer) Close() error {
	f.closed = true
	return nil
}

func renderedConfig() *config.JobConfig {
	return &config.JobConfig{
		Name:    "spa",
		JobType: config.JobRendered,
		URLs:    []string{"https://spa.test/list"},
		Selectors: &config.SelectorConfig{
			Item: "div.row",
			Fields: map[string]config.FieldSelector{
				"name": {Selector: "h2"},
			},
		},
		Pagination: &config.PaginationConfig{NextPageSelector: "button.more", MaxPages: 5},
		UserAgent:  "harvester-test",
	}
}

const listPage1 = `<div class="row"><h2>Alpha</h2></div><div class="row"><h2>Beta</h2></div>`
const listPage2 = `<div class="row"><h2>Gamma</h2></div>`

func newRenderedStrategy(t *testing.T, cfg *config.JobConfig, fake *fakeRenderer) Strategy {
	t.Helper()
	plan, err := planFor(cfg)
	if err != nil {
		t.Fatalf("compile plan: %v", err)
	}
	s, err := New(cfg, plan, Deps{Renderer: fake})
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	return s
}

func TestRenderedFetchAndClickNext(t *testing.T) {
	fake := newFakeRenderer()
	fake.pages["https://spa.test/list"] = listPage1
	fake.pages["https://spa.test/list?page=2"] = listPage2
	fake.nextOrder["https://spa.test/list"] = "https://spa.test/list?page=2"

	s := newRenderedStrategy(t, renderedConfig(), fake)

	page := s.FetchPage(context.Background(), "https://spa.test/list")
	if page.Outcome != models.OutcomeOK {
		t.Fatalf("outcome = %q, want ok", page.Outcome)
	}
	if len(page.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(page.Records))
	}
	if page.Records[0].Fields["name"] != "Alpha" {
		t.Errorf("name = %v", page.Records[0].Fields["name"])
	}
	if page.NextTarget != "https://spa.test/list?page=2" {
		t.Errorf("next = %q", page.NextTarget)
	}

	// the click already left the renderer on page 2, so the second fetch
	// must not reload it
	page = s.FetchPage(context.Background(), "https://spa.test/list?page=2")
	if page.Outcome != models.OutcomeOK {
		t.Fatalf("outcome = %q, want ok", page.Outcome)
	}
	if len(page.Records) != 1 || page.Records[0].Fields["name"] != "Gamma" {
		t.Errorf("records = %+v", page.Records)
	}
	if page.NextTarget != "" {
		t.Errorf("next = %q, want empty on last page", page.NextTarget)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fake.closed {
		t.Error("renderer not closed")
	}
}

func TestRenderedRetriesLoad(t *testing.T) {
	fake := newFakeRenderer()
	fake.pages["https://spa.test/list"] = listPage2
	fake.loadErrs["https://spa.test/list"] = 2

	cfg := renderedConfig()
	cfg.MaxRetries = 2
	s := newRenderedStrategy(t, cfg, fake)

	page := s.FetchPage(context.Background(), "https://spa.test/list")
	if page.Outcome != models.OutcomeOK {
		t.Fatalf("outcome = %q, want ok after load retries", page.Outcome)
	}
}

func TestRenderedLoadFailureIsFailedPage(t *testing.T) {
	fake := newFakeRenderer()

	s := newRenderedStrategy(t, renderedConfig(), fake)

	page := s.FetchPage(context.Background(), "https://spa.test/missing")
	if page.Outcome != models.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", page.Outcome)
	}
}

func TestRenderedMalformedTarget(t *testing.T) {
	fake := newFakeRenderer()

	s := newRenderedStrategy(t, renderedConfig(), fake)

	page := s.FetchPage(context.Background(), "not a url")
	if page.Outcome != models.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", page.Outcome)
	}
	if page.ErrorCategory != "invalid_url" {
		t.Errorf("category = %q, want invalid_url", page.ErrorCategory)
	}
	// a malformed target must fail before any load attempt, not burn the
	// retry budget
	if fake.loads != 0 {
		t.Errorf("loads = %d, want 0", fake.loads)
	}
}

func TestRenderedLoginRunsOnce(t *testing.T) {
	fake := newFakeRenderer()
	fake.pages["https://spa.test/login"] = `<form></form>`
	fake.pages["https://spa.test/list"] = listPage1
	fake.pages["https://spa.test/dashboard"] = `<div class="profile"></div>`
	fake.nextOrder["https://spa.test/login"] = "https://spa.test/dashboard"

	cfg := renderedConfig()
	cfg.Login = &config.LoginConfig{
		LoginURL:           "https://spa.test/login",
		UsernameSelector:   "#user",
		PasswordSelector:   "#pass",
		SubmitSelector:     "#submit",
		Username:           "alice",
		Password:           "s3cret",
		SuccessURLContains: "/dashboard",
	}
	s := newRenderedStrategy(t, cfg, fake)

	page := s.FetchPage(context.Background(), "https://spa.test/list")
	if page.Outcome != models.OutcomeOK {
		t.Fatalf("outcome = %q, want ok", page.Outcome)
	}
	if fake.filled["#user"] != "alice" || fake.filled["#pass"] != "s3cret" {
		t.Errorf("credentials not filled: %v", fake.filled)
	}

	// second page: no second login
	clicks := len(fake.clicked)
	s.FetchPage(context.Background(), "https://spa.test/list")
	loginClicks := 0
	for _, c := range fake.clicked[:clicks] {
		if c == "#submit" {
			loginClicks++
		}
	}
	for _, c := range fake.clicked[clicks:] {
		if c == "#submit" {
			t.Fatal("login submitted again on second fetch")
		}
	}
	if loginClicks != 1 {
		t.Errorf("login submits = %d, want 1", loginClicks)
	}
}

func TestRenderedLoginFailureFailsPage(t *testing.T) {
	fake := newFakeRenderer()
	fake.pages["https://spa.test/login"] = `<form></form>`
	fake.pages["https://spa.test/list"] = listPage1
	fake.pages["https://spa.test/error"] = `<p>bad credentials</p>`
	fake.nextOrder["https://spa.test/login"] = "https://spa.test/error"

	cfg := renderedConfig()
	cfg.Login = &config.LoginConfig{
		LoginURL:           "https://spa.test/login",
		UsernameSelector:   "#user",
		PasswordSelector:   "#pass",
		SubmitSelector:     "#submit",
		Username:           "alice",
		Password:           "wrong",
		SuccessURLContains: "/dashboard",
	}
	s := newRenderedStrategy(t, cfg, fake)

	page := s.FetchPage(context.Background(), "https://spa.test/list")
	if page.Outcome != models.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", page.Outcome)
	}
	if page.ErrorCategory != "login" {
		t.Errorf("category = %q, want login", page.ErrorCategory)
	}
}
