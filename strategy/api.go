package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"webharvest/config"
	"webharvest/fetchretry"
	"webharvest/models"
	"webharvest/proxyring"
)

// API issues structured requests and remaps response elements into raw
// records via the configured field mappings.
type API struct {
	api   *config.APIConfig
	ring  *proxyring.Ring
	retry fetchretry.Policy

	client *resty.Client
}

func newAPI(cfg *config.JobConfig, deps Deps) (*API, error) {
	if cfg.API == nil {
		return nil, &config.ConfigError{Field: "api_config", Reason: "required for api jobs"}
	}

	client := resty.New().
		SetHeader("User-Agent", cfg.UserAgent).
		SetTimeout(cfg.Timeout())
	if deps.Transport != nil {
		client.SetTransport(deps.Transport)
	}

	return &API{
		api:    cfg.API,
		ring:   deps.Ring,
		retry:  retryPolicy(cfg),
		client: client,
	}, nil
}

// FetchPage issues one request to target, locates the record array via the
// configured data path, and remaps each element's fields. When a
// continuation path is configured and resolves, NextTarget carries the
// cursor-extended endpoint.
func (a *API) FetchPage(ctx context.Context, target string) models.PageResult {
	var payload any
	// Each attempt borrows and reports its own proxy, so consecutive
	// failures count per entry and retries rotate to a healthier one.
	fetchErr := a.retry.Do(ctx, func(attempt int) fetchretry.Result {
		entry := a.ring.Next()
		if entry != nil {
			a.client.SetProxy(entry.URL.String())
		} else {
			a.client.RemoveProxy()
		}

		req := a.client.R().
			SetContext(ctx).
			SetQueryParams(a.api.Params).
			SetHeaders(a.api.Headers)
		if len(a.api.Body) > 0 {
			req.SetBody(a.api.Body)
		}

		res := fetchretry.Succeed()
		resp, err := req.Execute(a.method(), target)
		switch {
		case err != nil:
			res = fetchretry.Classify(err, 0)
		case resp.StatusCode() >= http.StatusBadRequest:
			res = fetchretry.Classify(nil, resp.StatusCode())
		default:
			if err := json.Unmarshal(resp.Body(), &payload); err != nil {
				res = fetchretry.Abort(fmt.Errorf("decode response: %w", err))
			}
		}
		a.ring.Report(entry, res.Class == fetchretry.Success)
		return res
	})

	if fetchErr != nil {
		slog.Warn("api request failed",
			slog.String("endpoint", target),
			slog.String("category", fetchretry.Label(fetchErr)),
			slog.Any("error", fetchErr),
		)
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: fetchretry.Label(fetchErr)}
	}

	records := a.remap(a.locate(payload), target)
	slog.Debug("api page collected",
		slog.String("endpoint", target),
		slog.Int("items", len(records)),
	)

	return models.PageResult{
		Records:    records,
		NextTarget: a.continuation(payload, target),
		Outcome:    models.OutcomeOK,
	}
}

func (a *API) method() string {
	if a.api.Method == "" {
		return http.MethodGet
	}
	return a.api.Method
}

// locate walks the dotted data path into the response and normalizes the
// result to a list of elements.
func (a *API) locate(payload any) []any {
	data := lookupPath(payload, a.api.DataPath)
	switch v := data.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// remap builds one raw record per element using the name-to-source-path
// mapping. Missing source paths yield nil field values.
func (a *API) remap(items []any, source string) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		fields := make(map[string]any, len(a.api.FieldMappings))
		for name, path := range a.api.FieldMappings {
			fields[name] = lookupPath(item, path)
		}
		records = append(records, models.RawRecord{Fields: fields, Source: source})
	}
	return records
}

// continuation resolves the configured next path against the response. A
// full URL is followed as-is; any other scalar is appended to the endpoint
// as the cursor parameter.
func (a *API) continuation(payload any, target string) string {
	if a.api.NextPath == "" {
		return ""
	}
	cursor := stringify(lookupPath(payload, a.api.NextPath))
	if cursor == "" {
		return ""
	}
	if strings.HasPrefix(cursor, "http://") || strings.HasPrefix(cursor, "https://") {
		return cursor
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	q := parsed.Query()
	q.Set(a.api.CursorParam, cursor)
	parsed.RawQuery = q.Encode()
	next := parsed.String()
	if next == target {
		return ""
	}
	return next
}

// lookupPath walks a dotted path through nested JSON objects.
func lookupPath(v any, path string) any {
	if path == "" {
		return v
	}
	current := v
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Close is a no-op; the resty client holds no per-run resources beyond its
// connection pool.
func (a *API) Close() error { return nil }
