package audit

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Searchable fields
const (
	FieldAction       = "action"
	FieldEntity       = "entity"
	FieldActorDisplay = "actorDisplay"
)

// ActionAll is the action value that disables action filtering
const ActionAll = "all"

// DateLayout is the accepted from/to format
const DateLayout = "2006-01-02"

// Pagination bounds
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// DefaultSearchFields is the fixed set free-text search runs across
var DefaultSearchFields = []string{FieldAction, FieldEntity, FieldActorDisplay}

var searchable = map[string]bool{
	FieldAction:       true,
	FieldEntity:       true,
	FieldActorDisplay: true,
}

// Match is a case-insensitive regular expression applied to one or more
// fields, matching when any field matches. Pattern is always built from
// escaped user input.
type Match struct {
	Pattern string
	Fields  []string
}

// Filter is the composed, backend-neutral filter expression. All non-nil
// clauses must hold.
type Filter struct {
	Search *Match
	Action *Match
	From   *time.Time
	To     *time.Time
}

// IsEmpty reports whether the filter matches every entry
func (f Filter) IsEmpty() bool {
	return f.Search == nil && f.Action == nil && f.From == nil && f.To == nil
}

// Key is a stable textual form of the filter, used for cache keys
func (f Filter) Key() string {
	var b strings.Builder
	if f.Search != nil {
		fmt.Fprintf(&b, "s=%s@%s;", f.Search.Pattern, strings.Join(f.Search.Fields, ","))
	}
	if f.Action != nil {
		fmt.Fprintf(&b, "a=%s;", f.Action.Pattern)
	}
	if f.From != nil {
		fmt.Fprintf(&b, "f=%d;", f.From.UnixNano())
	}
	if f.To != nil {
		fmt.Fprintf(&b, "t=%d;", f.To.UnixNano())
	}
	return b.String()
}

// Compile returns an in-process predicate equivalent to the filter
func (f Filter) Compile() (func(AuditEntry) bool, error) {
	search, err := compileMatch(f.Search)
	if err != nil {
		return nil, err
	}
	action, err := compileMatch(f.Action)
	if err != nil {
		return nil, err
	}

	return func(e AuditEntry) bool {
		if f.From != nil && e.CreatedAt.Before(*f.From) {
			return false
		}
		if f.To != nil && e.CreatedAt.After(*f.To) {
			return false
		}
		return action(e) && search(e)
	}, nil
}

func compileMatch(m *Match) (func(AuditEntry) bool, error) {
	if m == nil {
		return func(AuditEntry) bool { return true }, nil
	}
	re, err := regexp.Compile("(?i)" + m.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", m.Pattern, err)
	}
	return func(e AuditEntry) bool {
		for _, field := range m.Fields {
			if re.MatchString(FieldValue(e, field)) {
				return true
			}
		}
		return false
	}, nil
}

// FieldValue returns the searchable field of an entry by name
func FieldValue(e AuditEntry, field string) string {
	switch field {
	case FieldAction:
		return e.Action
	case FieldEntity:
		return e.Entity
	case FieldActorDisplay:
		return e.ActorDisplay
	}
	return ""
}

// QueryParams are the raw, optional inputs of a query
type QueryParams struct {
	Search       string
	Action       string
	From         string
	To           string
	SearchFields []string
}

// QueryParamsFromValues reads search, action, from and to from a query string
func QueryParamsFromValues(q url.Values) QueryParams {
	return QueryParams{
		Search: q.Get("search"),
		Action: q.Get("action"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
}

// Composer turns QueryParams into a Filter. Dates are interpreted in Location.
type Composer struct {
	Location *time.Location
}

// NewComposer creates a Composer; a nil location means time.Local
func NewComposer(loc *time.Location) *Composer {
	if loc == nil {
		loc = time.Local
	}
	return &Composer{Location: loc}
}

// Compose builds the filter. Unparsable dates are ignored; only a search
// field outside the searchable set is an error.
func (c *Composer) Compose(p QueryParams) (Filter, error) {
	var f Filter

	if action := strings.TrimSpace(p.Action); action != "" && !strings.EqualFold(action, ActionAll) {
		f.Action = &Match{
			Pattern: "^" + regexp.QuoteMeta(action),
			Fields:  []string{FieldAction},
		}
	}

	if from, ok := c.parseDay(p.From); ok {
		f.From = &from
	}
	if to, ok := c.parseDay(p.To); ok {
		end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), c.location())
		f.To = &end
	}

	if search := strings.TrimSpace(p.Search); search != "" {
		fields := p.SearchFields
		if len(fields) == 0 {
			fields = DefaultSearchFields
		}
		for _, field := range fields {
			if !searchable[field] {
				return Filter{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
			}
		}
		f.Search = &Match{
			Pattern: regexp.QuoteMeta(search),
			Fields:  append([]string(nil), fields...),
		}
	}

	return f, nil
}

func (c *Composer) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c *Composer) parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s, c.location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Window is the pagination window applied after filtering. Backends differ on
// a zero Limit (no rows in PostgreSQL, no limit in MongoDB), so build windows
// with NewWindow.
type Window struct {
	Limit int
	Skip  int
}

// NewWindow clamps limit to [1, MaxLimit] and floors skip at 0
func NewWindow(limit, skip int) Window {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if skip < 0 {
		skip = 0
	}
	return Window{Limit: limit, Skip: skip}
}

// WindowFromValues reads limit/skip, or page/pageSize when skip is absent.
// Malformed values fall back to the defaults.
func WindowFromValues(q url.Values) Window {
	limit, ok := atoi(q.Get("limit"))
	if !ok {
		limit, ok = atoi(q.Get("pageSize"))
	}
	if !ok {
		limit = DefaultLimit
	}
	w := NewWindow(limit, 0)

	if skip, ok := atoi(q.Get("skip")); ok {
		return NewWindow(w.Limit, skip)
	}
	if page, ok := atoi(q.Get("page")); ok {
		if page < 1 {
			page = 1
		}
		// cap so the skip cannot wrap around
		before := page - 1
		if before > math.MaxInt/w.Limit {
			before = math.MaxInt / w.Limit
		}
		return NewWindow(w.Limit, before*w.Limit)
	}
	return w
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
