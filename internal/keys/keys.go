// Package keys loads the versioned activity vocabulary document. The document maps the
// fixed set of computable stats, time windows and account selections to the display
// names clients use as keys, so the dashboard never hard-codes them.
package keys

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"strata-netmon/internal/model"
)

// CurrentVersion is the only document version this build understands.
const CurrentVersion = 1

const maxNameLength = 64

//go:embed activity_keys.json
var defaultDocument []byte

// StatKey identifies a computable activity statistic.
type StatKey string

const (
	StatUserOps              StatKey = "ACTIVITY_STATS__USER_OPS"
	StatGasUsed              StatKey = "ACTIVITY_STATS__GAS_USED"
	StatUniqueActiveAccounts StatKey = "ACTIVITY_STATS__UNIQUE_ACTIVE_ACCOUNTS"
)

// WindowKey identifies a time window.
type WindowKey string

const (
	WindowLast24Hours WindowKey = "TIME_WINDOW__LAST_24_HOURS"
	WindowLast30Days  WindowKey = "TIME_WINDOW__LAST_30_DAYS"
	WindowYearToDate  WindowKey = "TIME_WINDOW__YEAR_TO_DATE"
)

// SelectionKey identifies an account selection.
type SelectionKey string

const (
	SelectRecent             SelectionKey = "ACCOUNTS__RECENT"
	SelectTopGasConsumers24h SelectionKey = "ACCOUNTS__TOP_GAS_CONSUMERS_24H"
)

var (
	statOrder      = []StatKey{StatUserOps, StatGasUsed, StatUniqueActiveAccounts}
	windowOrder    = []WindowKey{WindowLast24Hours, WindowLast30Days, WindowYearToDate}
	selectionOrder = []SelectionKey{SelectRecent, SelectTopGasConsumers24h}
)

// Since returns the inclusive start of the window ending at now.
func (w WindowKey) Since(now time.Time) time.Time {
	now = now.UTC()
	switch w {
	case WindowLast24Hours:
		return now.Add(-24 * time.Hour)
	case WindowLast30Days:
		return now.AddDate(0, 0, -30)
	case WindowYearToDate:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return now
	}
}

// Document is the on-disk form.
type Document struct {
	Version          int                     `json:"version"`
	StatNames        map[StatKey]string      `json:"activity_stat_names"`
	TimeWindows      map[WindowKey]string    `json:"time_windows"`
	SelectAccountsBy map[SelectionKey]string `json:"select_accounts_by"`
}

// Entry pairs a key with its display name.
type Entry[K ~string] struct {
	Key  K
	Name string
}

// Schema is a validated, immutable key document.
type Schema struct {
	doc        Document
	raw        []byte
	stats      []Entry[StatKey]
	windows    []Entry[WindowKey]
	selections []Entry[SelectionKey]
}

// Default returns the embedded document.
func Default() *Schema {
	schema, err := Parse(defaultDocument)
	if err != nil {
		panic("embedded activity keys invalid: " + err.Error())
	}
	return schema
}

// Load reads the document at path, or the embedded default when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read activity keys: %w", err)
	}
	schema, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("activity keys %s: %w", path, err)
	}
	return schema, nil
}

// Parse validates a document. A missing version is read as version 1.
func Parse(raw []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported version %d", doc.Version)
	}

	s := &Schema{doc: doc}
	var err error
	if s.stats, err = entries("activity_stat_names", doc.StatNames, statOrder); err != nil {
		return nil, err
	}
	if s.windows, err = entries("time_windows", doc.TimeWindows, windowOrder); err != nil {
		return nil, err
	}
	if s.selections, err = entries("select_accounts_by", doc.SelectAccountsBy, selectionOrder); err != nil {
		return nil, err
	}

	normalized, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	s.raw = normalized
	return s, nil
}

func entries[K ~string](section string, names map[K]string, order []K) ([]Entry[K], error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%s is empty", section)
	}

	known := make(map[K]bool, len(order))
	for _, k := range order {
		known[k] = true
	}
	seen := make(map[string]K, len(names))
	for key, name := range names {
		if !known[key] {
			return nil, fmt.Errorf("%s: unknown key %q", section, key)
		}
		if !ValidName(name) {
			return nil, fmt.Errorf("%s: invalid display name %q for %s", section, name, key)
		}
		if other, dup := seen[name]; dup {
			return nil, fmt.Errorf("%s: display name %q used by %s and %s", section, name, other, key)
		}
		seen[name] = key
	}

	out := make([]Entry[K], 0, len(names))
	for _, k := range order {
		if name, ok := names[k]; ok {
			out = append(out, Entry[K]{Key: k, Name: name})
		}
	}
	return out, nil
}

// ValidName reports whether s is usable as a display name and query value.
func ValidName(s string) bool {
	if s == "" || len(s) > maxNameLength {
		return false
	}
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == ' ':
		default:
			return false
		}
	}
	return true
}

// Version returns the document version.
func (s *Schema) Version() int { return s.doc.Version }

// Raw returns the normalised document for serving.
func (s *Schema) Raw() []byte { return s.raw }

// Stats returns configured stats in canonical order.
func (s *Schema) Stats() []Entry[StatKey] { return s.stats }

// Windows returns configured windows in canonical order.
func (s *Schema) Windows() []Entry[WindowKey] { return s.windows }

// Selections returns configured selections in canonical order.
func (s *Schema) Selections() []Entry[SelectionKey] { return s.selections }

// StatName returns the display name of a stat if configured.
func (s *Schema) StatName(k StatKey) (string, bool) {
	name, ok := s.doc.StatNames[k]
	return name, ok
}

// SelectionName returns the display name of a selection if configured.
func (s *Schema) SelectionName(k SelectionKey) (string, bool) {
	name, ok := s.doc.SelectAccountsBy[k]
	return name, ok
}

// StatNames lists stat display names, sorted.
func (s *Schema) StatNames() []string { return sortedNames(s.stats) }

// WindowNames lists window display names, sorted.
func (s *Schema) WindowNames() []string { return sortedNames(s.windows) }

// SelectionNames lists selection display names, sorted.
func (s *Schema) SelectionNames() []string { return sortedNames(s.selections) }

func sortedNames[K ~string](list []Entry[K]) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Name
	}
	sort.Strings(out)
	return out
}

// EmptyStats returns stats zero-filled for every stat and window, and an empty
// list for every selection.
func (s *Schema) EmptyStats() model.ActivityStats {
	stats := model.NewActivityStats()
	for _, stat := range s.stats {
		inner := make(map[string]uint64, len(s.windows))
		for _, w := range s.windows {
			inner[w.Name] = 0
		}
		stats.Stats[stat.Name] = inner
	}
	for _, sel := range s.selections {
		stats.SelectedAccounts[sel.Name] = []model.Account{}
	}
	return stats
}
