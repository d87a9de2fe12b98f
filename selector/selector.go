// Package selector compiles a declarative selector spec into an extraction
// plan and applies it to page markup. Plans are built once per job and are
// immutable afterwards.
package selector

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"webharvest/config"
	"webharvest/models"
)

// urlAttrs are attributes whose extracted values are resolved to absolute
// URLs against the page they came from.
var urlAttrs = map[string]bool{"href": true, "src": true}

type cssField struct {
	name string
	sel  cascadia.Selector
	attr string
}

type xpathField struct {
	name string
	expr *xpath.Expr
	attr string
}

// Plan is the compiled form of a selector spec: an item locator plus an
// ordered field mapping.
type Plan struct {
	lang string

	cssItem   cascadia.Selector
	cssFields []cssField

	xpItem   *xpath.Expr
	xpFields []xpathField
}

// Compile builds a Plan from the selector spec. Invalid locators fail with
// a ConfigError before any network activity.
func Compile(sc *config.SelectorConfig) (*Plan, error) {
	if sc == nil || sc.Item == "" {
		return nil, &config.ConfigError{Field: "selectors.item", Reason: "item locator is required"}
	}

	// Field order is fixed at compile time so extraction output is stable.
	names := make([]string, 0, len(sc.Fields))
	for name := range sc.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	p := &Plan{lang: sc.Language()}
	switch p.lang {
	case "css":
		item, err := cascadia.Compile(sc.Item)
		if err != nil {
			return nil, &config.ConfigError{Field: "selectors.item", Reason: err.Error()}
		}
		p.cssItem = item
		for _, name := range names {
			f := sc.Fields[name]
			sel, err := cascadia.Compile(f.Selector)
			if err != nil {
				return nil, &config.ConfigError{Field: "selectors.fields." + name, Reason: err.Error()}
			}
			p.cssFields = append(p.cssFields, cssField{name: name, sel: sel, attr: f.Attr})
		}
	case "xpath":
		item, err := xpath.Compile(sc.Item)
		if err != nil {
			return nil, &config.ConfigError{Field: "selectors.item", Reason: err.Error()}
		}
		p.xpItem = item
		for _, name := range names {
			f := sc.Fields[name]
			expr, err := xpath.Compile(f.Selector)
			if err != nil {
				return nil, &config.ConfigError{Field: "selectors.fields." + name, Reason: err.Error()}
			}
			p.xpFields = append(p.xpFields, xpathField{name: name, expr: expr, attr: f.Attr})
		}
	default:
		return nil, &config.ConfigError{Field: "selectors.type", Reason: "must be css or xpath"}
	}
	return p, nil
}

// FieldNames returns the plan's field names in extraction order.
func (p *Plan) FieldNames() []string {
	var names []string
	switch p.lang {
	case "css":
		for _, f := range p.cssFields {
			names = append(names, f.name)
		}
	case "xpath":
		for _, f := range p.xpFields {
			names = append(names, f.name)
		}
	}
	return names
}

// Extract applies the plan to page markup. Items whose fields all came up
// empty are skipped. Multiple matches for one field locator are joined into
// a single space-delimited string.
func (p *Plan) Extract(pageHTML, pageURL string) ([]models.RawRecord, error) {
	if pageHTML == "" {
		return nil, nil
	}
	switch p.lang {
	case "css":
		return p.extractCSS(pageHTML, pageURL)
	default:
		return p.extractXPath(pageHTML, pageURL)
	}
}

func (p *Plan) extractCSS(pageHTML, pageURL string) ([]models.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	var records []models.RawRecord
	doc.FindMatcher(p.cssItem).Each(func(_ int, item *goquery.Selection) {
		fields := make(map[string]any, len(p.cssFields))
		empty := true
		for _, f := range p.cssFields {
			var parts []string
			item.FindMatcher(f.sel).Each(func(_ int, match *goquery.Selection) {
				var v string
				if f.attr != "" {
					v = match.AttrOr(f.attr, "")
					if urlAttrs[f.attr] {
						v = absoluteURL(pageURL, v)
					}
				} else {
					v = match.Text()
				}
				if v = strings.TrimSpace(v); v != "" {
					parts = append(parts, v)
				}
			})
			if len(parts) == 0 {
				fields[f.name] = nil
				continue
			}
			fields[f.name] = strings.Join(parts, " ")
			empty = false
		}
		if !empty {
			records = append(records, models.RawRecord{Fields: fields, Source: pageURL})
		}
	})
	return records, nil
}

func (p *Plan) extractXPath(pageHTML, pageURL string) ([]models.RawRecord, error) {
	doc, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	var records []models.RawRecord
	for _, item := range htmlquery.QuerySelectorAll(doc, p.xpItem) {
		fields := make(map[string]any, len(p.xpFields))
		empty := true
		for _, f := range p.xpFields {
			var parts []string
			for _, match := range htmlquery.QuerySelectorAll(item, f.expr) {
				var v string
				if f.attr != "" {
					v = htmlquery.SelectAttr(match, f.attr)
					if urlAttrs[f.attr] {
						v = absoluteURL(pageURL, v)
					}
				} else {
					v = htmlquery.InnerText(match)
				}
				if v = strings.TrimSpace(v); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) == 0 {
				fields[f.name] = nil
				continue
			}
			fields[f.name] = strings.Join(parts, " ")
			empty = false
		}
		if !empty {
			records = append(records, models.RawRecord{Fields: fields, Source: pageURL})
		}
	}
	return records, nil
}

// Locator finds a single element, typically the next-page link.
type Locator struct {
	lang string
	css  cascadia.Selector
	xp   *xpath.Expr
}

// CompileLocator builds a single-element locator in the given language.
func CompileLocator(lang, expr string) (*Locator, error) {
	l := &Locator{lang: lang}
	if lang == "" {
		l.lang = "css"
	}
	var err error
	switch l.lang {
	case "css":
		l.css, err = cascadia.Compile(expr)
	case "xpath":
		l.xp, err = xpath.Compile(expr)
	default:
		return nil, &config.ConfigError{Field: "pagination.next_page_selector", Reason: "must be css or xpath"}
	}
	if err != nil {
		return nil, &config.ConfigError{Field: "pagination.next_page_selector", Reason: err.Error()}
	}
	return l, nil
}

// Href resolves the locator's target link to an absolute URL. Returns ""
// when no link is found or when the link points back at the current page.
func (l *Locator) Href(pageHTML, pageURL string) string {
	if pageHTML == "" {
		return ""
	}
	var raw string
	switch l.lang {
	case "css":
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
		if err != nil {
			return ""
		}
		raw = doc.FindMatcher(l.css).First().AttrOr("href", "")
	case "xpath":
		doc, err := htmlquery.Parse(strings.NewReader(pageHTML))
		if err != nil {
			return ""
		}
		node := htmlquery.QuerySelector(doc, l.xp)
		if node == nil {
			return ""
		}
		if node.Type == html.ElementNode {
			raw = htmlquery.SelectAttr(node, "href")
		}
		if raw == "" {
			raw = htmlquery.InnerText(node)
		}
	}
	if raw = strings.TrimSpace(raw); raw == "" {
		return ""
	}
	next := absoluteURL(pageURL, raw)
	if next == pageURL {
		return ""
	}
	return next
}

func absoluteURL(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
