package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"webharvest/config"
	"webharvest/models"
	"webharvest/selector"
)

const page1 = `<html><body>
<article class="product"><h3>Alpha</h3><p class="price">£10.00</p></article>
<article class="product"><h3>Beta</h3><p class="price">£25.00</p></article>
<li class="next"><a href="/page-2.html">next</a></li>
</body></html>`

const page2 = `<html><body>
<article class="product"><h3></h3><p class="price">£5.00</p></article>
<article class="product"><h3>Gamma</h3><p class="price">£30.00</p></article>
</body></html>`

func jobConfig() *config.JobConfig {
	return &config.JobConfig{
		Name:    "catalog",
		JobType: config.JobStatic,
		URLs:    []string{"https://catalog.test/page-1.html"},
		Selectors: &config.SelectorConfig{
			Item: "article.product",
			Fields: map[string]config.FieldSelector{
				"title": {Selector: "h3"},
				"price": {Selector: "p.price"},
			},
		},
		Pagination: &config.PaginationConfig{NextPageSelector: "li.next a", MaxPages: 10},
		Processing: &config.ProcessingRules{
			FieldTypes: map[string]config.FieldType{
				"price": {Type: "float"},
			},
			Validations: map[string]config.Validation{
				"title": {Required: true},
			},
			Transforms: config.TransformList{
				{Field: "price_band", Expression: `price > 20 ? "high" : "low"`},
			},
		},
		UserAgent: "harvester-test",
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestRunEndToEnd(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://catalog.test/page-1.html", htmlResponder(page1))
	transport.RegisterResponder("GET", "https://catalog.test/page-2.html", htmlResponder(page2))

	result, err := Run(context.Background(), jobConfig(), Options{
		Transport: transport,
		Metrics:   NewMetrics(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 4 items extracted, 1 dropped by the required-title rule
	if len(result.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Records))
	}
	s := result.Stats
	if s.PagesScraped != 2 || s.ItemsExtracted != 4 || s.ItemsProcessed != 3 || s.RecordsDropped != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.Duration <= 0 {
		t.Error("duration not finalized")
	}

	first := result.Records[0].Fields
	if first["title"] != "Alpha" || first["price"] != 10.0 || first["price_band"] != "low" {
		t.Errorf("first record = %#v", first)
	}
	last := result.Records[2].Fields
	if last["title"] != "Gamma" || last["price_band"] != "high" {
		t.Errorf("last record = %#v", last)
	}

	want := []string{"price", "title", "price_band"}
	if len(result.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", result.Columns, want)
	}
	for i := range want {
		if result.Columns[i] != want[i] {
			t.Fatalf("columns = %v, want %v", result.Columns, want)
		}
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := jobConfig()
	cfg.URLs = nil

	if _, err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected config error")
	}
}

func TestRunRequiresRendererForRenderedJobs(t *testing.T) {
	cfg := jobConfig()
	cfg.JobType = config.JobRendered

	if _, err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected error without renderer")
	}
}

func TestPageBudget(t *testing.T) {
	tests := []struct {
		name       string
		pagination *config.PaginationConfig
		sources    int
		want       int
	}{
		{"no pagination visits sources once", nil, 3, 3},
		{"explicit limit", &config.PaginationConfig{MaxPages: 7}, 1, 7},
		{"explicit zero is unlimited", &config.PaginationConfig{MaxPages: 0}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := jobConfig()
			cfg.Pagination = tt.pagination
			if got := pageBudget(cfg, tt.sources); got != tt.want {
				t.Errorf("pageBudget = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutputColumns(t *testing.T) {
	cfg := jobConfig()
	cfg.Processing.DropFields = []string{"price"}
	plan, err := selector.Compile(cfg.Selectors)
	if err != nil {
		t.Fatalf("compile plan: %v", err)
	}

	got := outputColumns(cfg, plan)
	want := []string{"title", "price_band"}
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestOutputColumnsForAPIJobs(t *testing.T) {
	cfg := &config.JobConfig{
		JobType: config.JobAPI,
		API: &config.APIConfig{
			BaseURL: "https://api.test",
			FieldMappings: map[string]string{
				"title": "attributes.title",
				"id":    "id",
			},
		},
	}
	got := outputColumns(cfg, nil)
	if len(got) != 2 || got[0] != "id" || got[1] != "title" {
		t.Fatalf("columns = %v, want sorted mapping names", got)
	}
}

func TestSummaryFormat(t *testing.T) {
	res := &Result{Stats: &models.RunStats{
		PagesScraped:   3,
		PagesFailed:    1,
		ItemsExtracted: 30,
		ItemsProcessed: 28,
		RecordsDropped: 2,
	}}
	out := Summary(res)
	for _, fragment := range []string{"pages=3", "failed=1", "success=75.0%", "processed=28"} {
		if !strings.Contains(out, fragment) {
			t.Errorf("summary %q missing %q", out, fragment)
		}
	}
}
