package process

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"webharvest/config"
	"webharvest/models"
)

// coerce converts a scraped value to its declared type. Any conversion
// failure yields the unset marker; the record survives.
func coerce(value any, ft config.FieldType) any {
	switch ft.Type {
	case "int":
		n, ok := toInt(value)
		if !ok {
			return unsetf("int", value)
		}
		return n
	case "float":
		f, ok := toFloat(value)
		if !ok {
			return unsetf("float", value)
		}
		return f
	case "boolean":
		return toBool(value)
	case "string":
		return strings.TrimSpace(stringForm(value))
	case "date":
		t, ok := parseTime(value, ft.Format, "2006-01-02")
		if !ok {
			return unsetf("date", value)
		}
		return t.Truncate(24 * time.Hour)
	case "datetime":
		t, ok := parseTime(value, ft.Format, time.RFC3339)
		if !ok {
			return unsetf("datetime", value)
		}
		return t
	default:
		return value
	}
}

func unsetf(kind string, value any) any {
	slog.Debug("coercion failed",
		slog.String("type", kind),
		slog.String("value", stringForm(value)),
	)
	return models.Unset
}

// toInt accepts numbers directly and strips currency symbols, grouping
// separators and other noise from strings before parsing.
func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	digits := keepRunes(stringForm(value), "0123456789-")
	if digits == "" || digits == "-" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	return n, err == nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	digits := keepRunes(stringForm(value), "0123456789.-")
	if digits == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(digits, 64)
	return f, err == nil
}

// toBool treats a closed set of strings as true and everything else as
// false; it never fails.
func toBool(value any) bool {
	if b, ok := value.(bool); ok {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(stringForm(value))) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

func parseTime(value any, format, fallback string) (time.Time, bool) {
	if t, ok := value.(time.Time); ok {
		return t, true
	}
	s := strings.TrimSpace(stringForm(value))
	if s == "" {
		return time.Time{}, false
	}
	layout := fallback
	if format != "" {
		layout = timeLayout(format)
	}
	t, err := time.Parse(layout, s)
	return t, err == nil
}

// strptimeDirectives maps the 1989 C strptime directives that appear in
// job configs onto Go reference-time layout fragments.
var strptimeDirectives = map[byte]string{
	'Y': "2006", 'y': "06",
	'm': "01", 'd': "02",
	'H': "15", 'I': "03",
	'M': "04", 'S': "05",
	'p': "PM", 'f': "000000",
	'b': "Jan", 'B': "January",
	'a': "Mon", 'A': "Monday",
	'z': "-0700", 'Z': "MST",
	'j': "002", 'e': "_2",
	'%': "%",
}

// timeLayout translates a strptime-style format into a Go layout. Formats
// with no % directives are assumed to already be Go layouts.
func timeLayout(format string) string {
	if !strings.ContainsRune(format, '%') {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			b.WriteByte(format[i])
			continue
		}
		i++
		if frag, ok := strptimeDirectives[format[i]]; ok {
			b.WriteString(frag)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(format[i])
	}
	return b.String()
}

func keepRunes(s, allowed string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(allowed, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stringForm(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// numericForm extracts a float for range validation from numeric types and
// numeric-looking strings.
func numericForm(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
