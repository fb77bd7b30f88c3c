package connector

import (
	"context"
)

// Attr is a single named attribute on an external object.
// Values are kept in declaration order; multi-valued attributes are common
// on directory servers.
type Attr struct {
	Name   string
	Values []string
}

// Record is one external object as returned by a connector search.
// Key is the connector-side unique identifier for the object.
type Record struct {
	Class string
	Key   string
	Attrs []Attr
}

// Attr returns the first value of the named attribute, or "" if absent.
func (r Record) Attr(name string) string {
	for _, a := range r.Attrs {
		if a.Name == name && len(a.Values) > 0 {
			return a.Values[0]
		}
	}
	return ""
}

// AttrValues returns all values of the named attribute, or nil if absent.
func (r Record) AttrValues(name string) []string {
	for _, a := range r.Attrs {
		if a.Name == name {
			return a.Values
		}
	}
	return nil
}

// Page is one page of search results plus the cookie to request the next
// page. An empty cookie means the stream is exhausted.
type Page struct {
	Records []Record
	Cookie  string
}

// Filter restricts a search to records matching an attribute value.
// The zero Filter matches everything.
type Filter struct {
	Attr  string
	Value string
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if f.Attr == "" {
		return true
	}
	for _, v := range r.AttrValues(f.Attr) {
		if v == f.Value {
			return true
		}
	}
	return false
}

// Connector is the uniform abstraction over one external system.
//
// Create/Update/Delete mutate a single object and return the external key
// assigned by the resource. Get reads one object, returning nil when the
// object does not exist. Search returns one page of records; callers
// drive pagination by passing back the returned cookie. Changes exposes the
// resource's native change-log bounded by a sync token; connectors that
// have no change-log may implement it as a full search. LatestToken reads
// the current change cursor without pulling records, so a full
// reconciliation pass can record where incremental pulls should resume.
//
// All methods honor context cancellation and deadlines. Errors are
// classified transient or permanent via the Error type in this package.
type Connector interface {
	Create(ctx context.Context, class string, key string, attrs []Attr) (string, error)
	Update(ctx context.Context, class string, key string, attrs []Attr) (string, error)
	Delete(ctx context.Context, class string, key string) error
	Get(ctx context.Context, class string, key string) (*Record, error)
	Search(ctx context.Context, class string, filter Filter, cookie string) (Page, error)
	Changes(ctx context.Context, class string, token string) ([]Record, string, error)
	LatestToken(ctx context.Context, class string) (string, error)
	Test(ctx context.Context) error
}
