package tap

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Stream describes one Freshdesk collection and how it is replicated
type Stream struct {
	Name string
	// Path is relative to /api/v2/. Child paths contain a {parent_id} placeholder.
	Path           string
	ReplicationKey string
	// FilterParam is the server side "changed since" query parameter, if the
	// endpoint has one. Records are always filtered client side as well.
	FilterParam string
	Params      url.Values
	Child       *Stream
	// Variants are extra passes over the same endpoint whose records are
	// emitted under this stream but bookmarked separately.
	Variants []Variant
}

// Variant is a server side filtered pass over a stream's endpoint
type Variant struct {
	// Name is the bookmark name, e.g. tickets_deleted
	Name   string
	Params url.Values
}

// ResourcePath returns the request path, substituting the parent id for
// child streams.
func (s *Stream) ResourcePath(parentID any) string {
	if parentID == nil {
		return s.Path
	}
	return strings.ReplaceAll(s.Path, "{parent_id}", formatID(parentID))
}

func formatID(id any) string {
	switch v := id.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return fmt.Sprint(id)
}

var conversations = &Stream{
	Name:           "conversations",
	Path:           "tickets/{parent_id}/conversations",
	ReplicationKey: "updated_at",
}

// Catalog lists the top level streams. Child streams hang off their parent.
var Catalog = []*Stream{
	{Name: "agents", Path: "agents", ReplicationKey: "updated_at"},
	{Name: "companies", Path: "companies", ReplicationKey: "updated_at"},
	{Name: "contacts", Path: "contacts", ReplicationKey: "updated_at", FilterParam: "_updated_since"},
	{Name: "groups", Path: "groups", ReplicationKey: "updated_at"},
	{Name: "roles", Path: "roles", ReplicationKey: "updated_at"},
	{Name: "satisfaction_ratings", Path: "surveys/satisfaction_ratings", ReplicationKey: "updated_at", FilterParam: "created_since"},
	{
		Name:           "tickets",
		Path:           "tickets",
		ReplicationKey: "updated_at",
		FilterParam:    "updated_since",
		Params: url.Values{
			"order_by":   {"updated_at"},
			"order_type": {"asc"},
			"include":    {"requester,company,stats"},
		},
		Child: conversations,
		Variants: []Variant{
			{Name: "tickets_deleted", Params: url.Values{"filter": {"deleted"}}},
			{Name: "tickets_spam", Params: url.Values{"filter": {"spam"}}},
		},
	},
	{Name: "time_entries", Path: "time_entries", ReplicationKey: "updated_at"},
}

// Lookup finds a top level or child stream by name
func Lookup(name string) (*Stream, bool) {
	for _, s := range Catalog {
		if s.Name == name {
			return s, true
		}
		if s.Child != nil && s.Child.Name == name {
			return s.Child, true
		}
	}
	return nil, false
}

// Names returns every stream name in sorted order
func Names() []string {
	var names []string
	for _, s := range Catalog {
		names = append(names, s.Name)
		if s.Child != nil {
			names = append(names, s.Child.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Selection is the set of streams whose records are emitted
type Selection map[string]bool

// Select validates names against the catalog. No names selects everything.
func Select(names []string) (Selection, error) {
	sel := make(Selection)
	if len(names) == 0 {
		for _, name := range Names() {
			sel[name] = true
		}
		return sel, nil
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("unknown stream %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		sel[name] = true
	}
	return sel, nil
}

// plan returns the top level streams that must be traversed for sel, which
// includes parents of selected children.
func (sel Selection) plan() []*Stream {
	var streams []*Stream
	for _, s := range Catalog {
		if sel[s.Name] || (s.Child != nil && sel[s.Child.Name]) {
			streams = append(streams, s)
		}
	}
	return streams
}
