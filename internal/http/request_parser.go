package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/transactions"
)

const (
	maxBodyBytes = 64 << 10
	maxWindow    = 3650
)

var errInvalidWindow = fmt.Errorf("window must be an integer between 0 and %d", maxWindow)

// RequestBodyParser reads a JSON or form-encoded body once and serves
// string values from it.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Number returns a JSON numeric value. Form bodies never carry numbers.
func (p *RequestBodyParser) Number(key string) (float64, bool) {
	if p.jsonData == nil {
		return 0, false
	}
	f, ok := p.jsonData[key].(float64)
	return f, ok
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseDraft builds a transaction draft from the body. A missing date
// means today. Amount and date format problems come back as
// ValidationError; everything else is validated by the repository.
func ParseDraft(p *RequestBodyParser, today core.Date) (transactions.Draft, error) {
	d := transactions.Draft{
		Type:     core.TransactionType(strings.ToLower(p.Get("type"))),
		Category: core.Category(p.Get("category")),
		Title:    p.Get("title"),
		Date:     today,
	}

	if f, ok := p.Number("amount"); ok {
		amount, err := core.AmountFromFloat(f)
		if err != nil {
			return transactions.Draft{}, &core.ValidationError{Field: "amount", Err: err}
		}
		d.Amount = amount
	} else if raw := p.Get("amount"); raw != "" {
		amount, err := core.ParseAmount(raw)
		if err != nil {
			return transactions.Draft{}, &core.ValidationError{Field: "amount", Err: err}
		}
		d.Amount = amount
	}

	if raw := p.Get("date"); raw != "" {
		date, err := core.ParseDate(raw)
		if err != nil {
			return transactions.Draft{}, &core.ValidationError{
				Field: "date",
				Err:   fmt.Errorf("%w: expected YYYY-MM-DD", core.ErrInvalidDate),
			}
		}
		d.Date = date
	}
	return d, nil
}

// ParseQuery reads list filters from the query string.
func ParseQuery(q url.Values) analytics.Query {
	return analytics.Query{
		Search:   strings.TrimSpace(q.Get("q")),
		Category: core.Category(strings.TrimSpace(q.Get("category"))),
		Type:     core.TransactionType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
	}
}

// ParseWindow reads the trend window in days, falling back to def when
// the parameter is absent.
func ParseWindow(q url.Values, def int) (int, error) {
	v := strings.TrimSpace(q.Get("window"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > maxWindow {
		return 0, errInvalidWindow
	}
	return n, nil
}

// today returns the civil date of now in now's location.
func today(now time.Time) core.Date {
	return core.DateOf(now)
}
