// Package fixtures writes filled fixtures to disk in the layout consumed by
// client test runners: one JSON document per filler, mapping fixture names to
// fixture objects.
package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturefill/types"
)

var log = log15.New("module", "fixtures")

// Collection accumulates filled fixtures grouped by filler name.
type Collection struct {
	byFiller map[string]map[string]*types.Fixture
}

func NewCollection() *Collection {
	return &Collection{byFiller: make(map[string]map[string]*types.Fixture)}
}

// Add merges a batch of named fixtures into the filler's group. Duplicate
// fixture names are an error, they would silently shadow each other on disk.
func (c *Collection) Add(filler string, fixtures map[string]*types.Fixture) error {
	group, ok := c.byFiller[filler]
	if !ok {
		group = make(map[string]*types.Fixture)
		c.byFiller[filler] = group
	}
	for name, fixture := range fixtures {
		if _, exists := group[name]; exists {
			return errors.Errorf("duplicate fixture name %q in filler %q", name, filler)
		}
		group[name] = fixture
	}
	return nil
}

// Fillers returns the filler names with at least one fixture, sorted.
func (c *Collection) Fillers() []string {
	names := make([]string, 0, len(c.byFiller))
	for name := range c.byFiller {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write serializes every filler group to <dir>/<filler>.json, creating the
// directory if needed. Files are written indented so fixture diffs stay
// reviewable.
func (c *Collection) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "fixture directory creation failed")
	}
	for _, filler := range c.Fillers() {
		path := filepath.Join(dir, filler+".json")
		if err := writeFile(path, c.byFiller[filler]); err != nil {
			return errors.Wrapf(err, "writing %s failed", path)
		}
		log.Info("wrote fixtures", "file", path, "count", len(c.byFiller[filler]))
	}
	return nil
}

func writeFile(path string, fixtures map[string]*types.Fixture) error {
	data, err := json.MarshalIndent(fixtures, "", "    ")
	if err != nil {
		return errors.Wrap(err, "fixture encoding failed")
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
