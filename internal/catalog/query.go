package catalog

import (
	"sort"
	"strings"
)

// Filter is a multi-select over the three facets. Values within a facet are
// alternatives; facets combine with AND. An empty facet matches everything.
type Filter struct {
	Courses []string `json:"courses,omitempty"`
	Years   []string `json:"years,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

func (f Filter) Empty() bool {
	return len(f.Courses) == 0 && len(f.Years) == 0 && len(f.Topics) == 0
}

// Apply returns the questions matching f, preserving order.
func (f Filter) Apply(items []Question) []Question {
	if f.Empty() {
		return items
	}
	courses, years, topics := set(f.Courses), set(f.Years), set(f.Topics)
	out := make([]Question, 0, len(items))
	for _, q := range items {
		if !matches(courses, q.CourseCode) || !matches(years, q.Year) || !matches(topics, q.Topic) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func set(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

func matches(want map[string]struct{}, v string) bool {
	if len(want) == 0 {
		return true
	}
	_, ok := want[v]
	return ok
}

// Page is one slice of a filtered result.
type Page struct {
	Items []Question `json:"items"`
	Page  int        `json:"page"`
	Pages int        `json:"pages"`
	Limit int        `json:"limit"`
	Total int        `json:"total"`
}

// Paginate cuts items into pages of limit. page is clamped to
// [1, max(1, pages)].
func Paginate(items []Question, page, limit int) Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	total := len(items)
	pages := (total + limit - 1) / limit
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	window := items[start:end:end]
	if window == nil {
		window = []Question{}
	}
	return Page{
		Items: window,
		Page:  page,
		Pages: pages,
		Limit: limit,
		Total: total,
	}
}

// Facets lists the selectable values of each filter.
type Facets struct {
	Courses []string `json:"courses"`
	Years   []string `json:"years"`
	Topics  []string `json:"topics"`
}

// BuildFacets returns sorted distinct courses and topics, and years newest
// first. Blank values are omitted.
func BuildFacets(items []Question) Facets {
	courses := map[string]struct{}{}
	years := map[string]struct{}{}
	topics := map[string]struct{}{}
	for _, q := range items {
		add(courses, q.CourseCode)
		add(years, q.Year)
		add(topics, q.Topic)
	}
	f := Facets{
		Courses: sortedKeys(courses),
		Years:   sortedKeys(years),
		Topics:  sortedKeys(topics),
	}
	sort.Sort(sort.Reverse(sort.StringSlice(f.Years)))
	return f
}

func add(m map[string]struct{}, v string) {
	if v != "" {
		m[v] = struct{}{}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
