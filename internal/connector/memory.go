package connector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process connector backed by a map. It implements the full
// Connector contract including a change-log for incremental pulls, and is
// the reference connector used by the engine tests.
//
// Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	resource string
	objects  map[string]map[string]Record // class -> key -> record
	log      []change
	seq      int64

	// failNext, when non-nil, is returned by the next mutating call and
	// then cleared. Tests use it to exercise partial-failure paths.
	failNext error
}

type change struct {
	seq    int64
	class  string
	record Record
}

// NewMemory creates an empty in-memory connector for the named resource.
func NewMemory(resource string) *Memory {
	return &Memory{
		resource: resource,
		objects:  make(map[string]map[string]Record),
	}
}

// FailNext makes the next mutating call fail with err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Seed inserts a record directly, bypassing the change log sequence used by
// FailNext. Intended for test setup.
func (m *Memory) Seed(class string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(class, rec)
}

// Get returns the stored record, or nil when absent.
func (m *Memory) Get(ctx context.Context, class, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.objects[class][key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Len returns the number of stored records for a class.
func (m *Memory) Len(class string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects[class])
}

func (m *Memory) put(class string, rec Record) {
	if m.objects[class] == nil {
		m.objects[class] = make(map[string]Record)
	}
	rec.Class = class
	m.objects[class][rec.Key] = rec
	m.seq++
	m.log = append(m.log, change{seq: m.seq, class: class, record: rec})
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// Create stores a new object under key.
func (m *Memory) Create(ctx context.Context, class, key string, attrs []Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return "", err
	}
	if _, exists := m.objects[class][key]; exists {
		return "", Permanent(m.resource, "create", fmt.Errorf("key %q already exists", key))
	}
	m.put(class, Record{Key: key, Attrs: cloneAttrs(attrs)})
	return key, nil
}

// Update merges attrs into an existing object.
func (m *Memory) Update(ctx context.Context, class, key string, attrs []Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return "", err
	}
	rec, ok := m.objects[class][key]
	if !ok {
		return "", ErrNotFound
	}
	for _, a := range attrs {
		rec = setAttr(rec, a)
	}
	m.put(class, rec)
	return key, nil
}

// Delete removes an object.
func (m *Memory) Delete(ctx context.Context, class, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.objects[class][key]; !ok {
		return ErrNotFound
	}
	delete(m.objects[class], key)
	m.seq++
	return nil
}

// Search returns all matching records in one page, sorted by key for
// deterministic iteration. The cookie is unused: the whole result fits in
// a single page.
func (m *Memory) Search(ctx context.Context, class string, filter Filter, cookie string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []Record
	for _, rec := range m.objects[class] {
		if filter.Matches(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return Page{Records: recs}, nil
}

// Changes returns records written after the given token, which is the
// decimal form of the connector's monotonic change counter.
func (m *Memory) Changes(ctx context.Context, class string, token string) ([]Record, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var since int64
	if token != "" {
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, "", Permanent(m.resource, "changes", fmt.Errorf("bad sync token %q: %w", token, err))
		}
		since = n
	}

	var recs []Record
	for _, c := range m.log {
		if c.seq > since && c.class == class {
			// Skip entries deleted since the change was logged.
			if _, live := m.objects[class][c.record.Key]; live {
				recs = append(recs, m.objects[class][c.record.Key])
			}
		}
	}
	return dedupeByKey(recs), strconv.FormatInt(m.seq, 10), nil
}

// LatestToken returns the current change counter in decimal form.
func (m *Memory) LatestToken(ctx context.Context, class string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return strconv.FormatInt(m.seq, 10), nil
}

// Test reports the connector healthy.
func (m *Memory) Test(ctx context.Context) error {
	return ctx.Err()
}

func setAttr(rec Record, a Attr) Record {
	for i, existing := range rec.Attrs {
		if existing.Name == a.Name {
			rec.Attrs[i] = Attr{Name: a.Name, Values: append([]string(nil), a.Values...)}
			return rec
		}
	}
	rec.Attrs = append(rec.Attrs, Attr{Name: a.Name, Values: append([]string(nil), a.Values...)})
	return rec
}

func cloneAttrs(attrs []Attr) []Attr {
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		out[i] = Attr{Name: a.Name, Values: append([]string(nil), a.Values...)}
	}
	return out
}

func dedupeByKey(recs []Record) []Record {
	seen := make(map[string]bool, len(recs))
	out := make([]Record, 0, len(recs))
	// Keep the last occurrence: it reflects the latest state.
	for i := len(recs) - 1; i >= 0; i-- {
		if !seen[recs[i].Key] {
			seen[recs[i].Key] = true
			out = append(out, recs[i])
		}
	}
	// Restore ascending key order for determinism.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
