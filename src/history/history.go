// Package history keeps a bounded, newest-first list of copied clipboard
// entries with at most one entry per distinct content.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultCapacity bounds the history when no capacity is configured.
const DefaultCapacity = 100

// Kind classifies an entry's content.
type Kind string

const (
	KindText     Kind = "text"
	KindRichText Kind = "richText"
	KindImage    Kind = "image"
	KindFile     Kind = "file"
	KindOther    Kind = "other"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindText, KindRichText, KindImage, KindFile, KindOther}

// ParseKind maps a stored name back to a Kind; unknown names become KindOther.
func ParseKind(s string) Kind {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k
		}
	}
	return KindOther
}

// Entry is one copied item. Two entries are equal when content, kind and
// timestamp all match.
type Entry struct {
	Content   string
	Kind      Kind
	Timestamp time.Time
}

// Preview returns the first line of the content, cut to n runes.
func (e Entry) Preview(n int) string {
	line, _, _ := strings.Cut(e.Content, "\n")
	if utf8.RuneCountInString(line) <= n {
		return line
	}
	r := []rune(line)
	return string(r[:n]) + "…"
}

// Clipboard is the system clipboard as seen by the history.
type Clipboard interface {
	WriteText(text string) error
}

// Store persists the history between runs. Several processes may share one
// store, so writes are per entry rather than whole-list replacements.
type Store interface {
	// Load returns the stored entries newest first.
	Load(ctx context.Context) ([]Entry, error)
	// Put records e as the newest entry, replacing any entry with the same
	// content, and keeps at most capacity entries.
	Put(ctx context.Context, e Entry, capacity int) error
	Delete(ctx context.Context, content string) error
	Clear(ctx context.Context) error
}

// Stats is derived from the entries on every call.
type Stats struct {
	Count      int
	TotalChars int
	ByKind     map[Kind]int
	Oldest     time.Time
	Newest     time.Time
}

type Options struct {
	Capacity  int
	Clipboard Clipboard
	Store     Store
	Now       func() time.Time
}

// History is safe for concurrent use, though the pipeline only ever mutates it
// from one run at a time.
type History struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	clip     Clipboard
	store    Store
	now      func() time.Time
}

func New(opts Options) *History {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &History{
		capacity: opts.Capacity,
		clip:     opts.Clipboard,
		store:    opts.Store,
		now:      opts.Now,
	}
}

// Load replaces the in-memory entries with the stored ones, applying the same
// dedupe and capacity rules as Add.
func (h *History) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	stored, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.replace(stored)
	return nil
}

func (h *History) replace(stored []Entry) {
	h.entries = h.entries[:0]
	seen := make(map[string]bool, len(stored))
	for _, e := range stored {
		if e.Content == "" || seen[e.Content] {
			continue
		}
		seen[e.Content] = true
		h.entries = append(h.entries, e)
		if len(h.entries) == h.capacity {
			break
		}
	}
}

// Add records content at the front. Empty content is ignored; an existing
// entry with the same content is moved rather than duplicated.
func (h *History) Add(content string, kind Kind) {
	if content == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.add(content, kind)
	h.writeThrough(func(ctx context.Context) error { return h.store.Put(ctx, e, h.capacity) })
}

func (h *History) add(content string, kind Kind) Entry {
	for i, e := range h.entries {
		if e.Content == content {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}
	h.entries = append(h.entries, Entry{})
	copy(h.entries[1:], h.entries)
	h.entries[0] = Entry{Content: content, Kind: kind, Timestamp: h.now()}
	if len(h.entries) > h.capacity {
		h.entries = h.entries[:h.capacity]
	}
	return h.entries[0]
}

// CopyText writes content to the clipboard and, when record is set, adds it to
// the history as text.
func (h *History) CopyText(content string, record bool) error {
	if h.clip == nil {
		return fmt.Errorf("no clipboard configured")
	}
	if err := h.clip.WriteText(content); err != nil {
		return err
	}
	if record {
		h.Add(content, KindText)
	}
	return nil
}

// Copy is CopyText with recording on; it reports success only.
func (h *History) Copy(content string) bool {
	if err := h.CopyText(content, true); err != nil {
		slog.Warn("clipboard copy failed", "err", err)
		return false
	}
	return true
}

// Search matches content case-insensitively, keeping history order. An empty
// query returns everything.
func (h *History) Search(query string) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if query == "" {
		return h.snapshot()
	}
	q := strings.ToLower(query)
	var out []Entry
	for _, e := range h.entries {
		if strings.Contains(strings.ToLower(e.Content), q) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of the history, newest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Latest returns the newest entry.
func (h *History) Latest() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[0], true
}

// Remove drops the entry with the given content and reports whether one existed.
func (h *History) Remove(content string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.Content == content {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			h.writeThrough(func(ctx context.Context) error { return h.store.Delete(ctx, content) })
			return true
		}
	}
	return false
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.writeThrough(func(ctx context.Context) error { return h.store.Clear(ctx) })
}

func (h *History) Statistics() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{Count: len(h.entries), ByKind: make(map[Kind]int)}
	for i, e := range h.entries {
		st.TotalChars += utf8.RuneCountInString(e.Content)
		st.ByKind[e.Kind]++
		if i == 0 || e.Timestamp.Before(st.Oldest) {
			st.Oldest = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(st.Newest) {
			st.Newest = e.Timestamp
		}
	}
	return st
}

// ExportAsText renders the history newest first, one block per entry.
func (h *History) ExportAsText() string {
	entries := h.Entries()

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.Content)
	}
	return b.String()
}

func (h *History) snapshot() []Entry {
	if len(h.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// writeThrough applies one change to the store and then adopts the stored
// list, which also picks up entries other processes recorded. Callers hold mu
// so writes land in mutation order.
func (h *History) writeThrough(write func(ctx context.Context) error) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		slog.Warn("history save failed", "err", err)
		return
	}
	stored, err := h.store.Load(ctx)
	if err != nil {
		slog.Warn("history reload failed", "err", err)
		return
	}
	h.replace(stored)
}
