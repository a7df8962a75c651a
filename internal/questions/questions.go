// Package questions loads gold-standard question sets.
//
// Two formats are understood: the Spider dev set (a JSON array of objects
// with db_id, question and query) and a YAML set of the form
//
//	questions:
//	  - id: q1
//	    database: concert_singer
//	    question: How many singers do we have?
//	    gold_sql: SELECT count(*) FROM singer
//	    difficulty: easy
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapbench/pkg/core"
	"gopkg.in/yaml.v3"
)

// Filter narrows a question set. Zero values select everything.
type Filter struct {
	Databases []string
	Limit     int
}

func (f Filter) keep(database string) bool {
	return len(f.Databases) == 0 || slices.Contains(f.Databases, database)
}

type spiderEntry struct {
	DBID     string `json:"db_id"`
	Question string `json:"question"`
	Query    string `json:"query"`
}

type yamlSet struct {
	Questions []core.Question `yaml:"questions"`
}

// Load reads the question set at path and applies the filter. Spider ids
// are assigned from the position in the file, before filtering, so they stay
// stable across filters.
func Load(path string, filter Filter) ([]core.Question, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("question set not found at %s: download the Spider dev set or point questions_path at a YAML set", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read question set: %w", err)
	}

	var all []core.Question
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		all, err = parseSpider(data)
	case ".yaml", ".yml":
		all, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported question set format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return filter.Apply(all), nil
}

// Source is a question set file.
type Source struct {
	Path string
}

// Questions loads the set and applies filter.
func (s Source) Questions(filter Filter) ([]core.Question, error) {
	return Load(s.Path, filter)
}

func parseSpider(data []byte) ([]core.Question, error) {
	var entries []spiderEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make([]core.Question, 0, len(entries))
	for i, e := range entries {
		out = append(out, core.Question{
			ID:       fmt.Sprintf("dev_%04d", i),
			Database: e.DBID,
			Text:     e.Question,
			GoldSQL:  e.Query,
		})
	}
	return out, nil
}

func parseYAML(data []byte) ([]core.Question, error) {
	var set yamlSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(set.Questions))
	for i, q := range set.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}
		if q.Database == "" || q.GoldSQL == "" {
			return nil, fmt.Errorf("question %s needs database and gold_sql", q.ID)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = true
	}
	return set.Questions, nil
}

// Apply keeps the questions of the selected databases, in order, up to the limit.
func (f Filter) Apply(all []core.Question) []core.Question {
	out := make([]core.Question, 0, len(all))
	for _, q := range all {
		if !f.keep(q.Database) {
			continue
		}
		out = append(out, q)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
