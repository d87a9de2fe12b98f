package selector

import (
	"testing"

	"webharvest/config"
)

const quotePage = `<!DOCTYPE html>
<html><body>
<div class="quote">
  <span class="text">Simplicity is the soul of efficiency.</span>
  <small class="author">Austin Freeman</small>
  <a class="tag" href="/tag/simplicity/">simplicity</a>
  <a class="tag" href="/tag/efficiency/">efficiency</a>
  <img class="portrait" src="/img/freeman.jpg"/>
</div>
<div class="quote">
  <span class="text">Talk is cheap. Show me the code.</span>
  <small class="author">Linus Torvalds</small>
</div>
<div class="quote">
  <span class="text">   </span>
</div>
<ul class="pager"><li class="next"><a href="/page/2/">Next</a></li></ul>
</body></html>`

func cssSpec() *config.SelectorConfig {
	return &config.SelectorConfig{
		Item: "div.quote",
		Fields: map[string]config.FieldSelector{
			"text":     {Selector: "span.text"},
			"author":   {Selector: "small.author"},
			"tags":     {Selector: "a.tag"},
			"portrait": {Selector: "img.portrait", Attr: "src"},
		},
	}
}

func TestExtractCSS(t *testing.T) {
	plan, err := Compile(cssSpec())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	records, err := plan.Extract(quotePage, "https://quotes.test/page/1/")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// the all-empty third item is skipped
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	first := records[0].Fields
	if first["author"] != "Austin Freeman" {
		t.Errorf("author = %v", first["author"])
	}
	// multiple matches join with a single space
	if first["tags"] != "simplicity efficiency" {
		t.Errorf("tags = %v", first["tags"])
	}
	// src attribute resolved against the page URL
	if first["portrait"] != "https://quotes.test/img/freeman.jpg" {
		t.Errorf("portrait = %v", first["portrait"])
	}

	second := records[1].Fields
	if second["tags"] != nil {
		t.Errorf("missing field = %v, want nil", second["tags"])
	}
	if records[1].Source != "https://quotes.test/page/1/" {
		t.Errorf("source = %q", records[1].Source)
	}
}

func TestExtractXPath(t *testing.T) {
	plan, err := Compile(&config.SelectorConfig{
		Type: "xpath",
		Item: "//div[@class='quote']",
		Fields: map[string]config.FieldSelector{
			"text":   {Selector: ".//span[@class='text']"},
			"author": {Selector: ".//small[@class='author']"},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	records, err := plan.Extract(quotePage, "https://quotes.test/")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[1].Fields["author"] != "Linus Torvalds" {
		t.Errorf("author = %v", records[1].Fields["author"])
	}
}

func TestFieldNamesStable(t *testing.T) {
	plan, err := Compile(cssSpec())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := []string{"author", "portrait", "tags", "text"}
	got := plan.FieldNames()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}

func TestCompileRejectsBadLocator(t *testing.T) {
	_, err := Compile(&config.SelectorConfig{
		Item: "div.quote",
		Fields: map[string]config.FieldSelector{
			"bad": {Selector: "p["},
		},
	})
	if err == nil {
		t.Fatal("expected compile error, got nil")
	}
}

func TestLocatorHref(t *testing.T) {
	tests := []struct {
		name string
		lang string
		expr string
		page string
		url  string
		want string
	}{
		{
			name: "relative link resolved",
			lang: "css",
			expr: "li.next a",
			page: quotePage,
			url:  "https://quotes.test/page/1/",
			want: "https://quotes.test/page/2/",
		},
		{
			name: "no match",
			lang: "css",
			expr: "li.missing a",
			page: quotePage,
			url:  "https://quotes.test/page/1/",
			want: "",
		},
		{
			name: "self link suppressed",
			lang: "css",
			expr: "a.self",
			page: `<a class="self" href="/page/1/">again</a>`,
			url:  "https://quotes.test/page/1/",
			want: "",
		},
		{
			name: "xpath link",
			lang: "xpath",
			expr: "//li[@class='next']/a",
			page: quotePage,
			url:  "https://quotes.test/page/1/",
			want: "https://quotes.test/page/2/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := CompileLocator(tt.lang, tt.expr)
			if err != nil {
				t.Fatalf("compile locator: %v", err)
			}
			if got := loc.Href(tt.page, tt.url); got != tt.want {
				t.Errorf("Href() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		base string
		ref  string
		want string
	}{
		{"https://example.test/a/b", "c.html", "https://example.test/a/c.html"},
		{"https://example.test/a/", "/root.html", "https://example.test/root.html"},
		{"https://example.test/", "https://other.test/x", "https://other.test/x"},
		{"https://example.test/", "", ""},
	}
	for _, tt := range tests {
		if got := absoluteURL(tt.base, tt.ref); got != tt.want {
			t.Errorf("absoluteURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
