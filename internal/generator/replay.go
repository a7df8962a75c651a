package generator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

// prediction is one line of a predictions file.
type prediction struct {
	Database string `json:"database"`
	Question string `json:"question"`
	Response
}

// ReplayFactory serves predictions recorded ahead of time, one JSONL file per
// approach.
type ReplayFactory struct {
	// predictions[approach][database][question]
	predictions map[core.Approach]map[string]map[string]Response
}

// LoadReplay reads the predictions file of every approach in paths.
// Approaches with an empty path are skipped.
func LoadReplay(paths map[core.Approach]string) (*ReplayFactory, error) {
	f := &ReplayFactory{predictions: make(map[core.Approach]map[string]map[string]Response)}
	for approach, path := range paths {
		if path == "" {
			continue
		}
		byDB, err := readPredictions(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s predictions: %w", approach, err)
		}
		f.predictions[approach] = byDB
	}
	return f, nil
}

func readPredictions(path string) (map[string]map[string]Response, error) {
	file, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	byDB := make(map[string]map[string]Response)
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p prediction
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Database == "" || p.Question == "" {
			return nil, fmt.Errorf("line %d: database and question are required", line)
		}
		if p.CostUSD < 0 || p.TokensUsed < 0 {
			return nil, fmt.Errorf("line %d: negative cost or tokens", line)
		}
		if byDB[p.Database] == nil {
			byDB[p.Database] = make(map[string]Response)
		}
		byDB[p.Database][p.Question] = p.Response
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return byDB, nil
}

// Generator returns the replay generator for database and approach.
func (f *ReplayFactory) Generator(database string, approach core.Approach) (Generator, error) {
	byDB, ok := f.predictions[approach]
	if !ok {
		return nil, fmt.Errorf("no predictions loaded for approach %s", approach)
	}
	return &replayGenerator{database: database, answers: byDB[database]}, nil
}

type replayGenerator struct {
	database string
	answers  map[string]Response
}

func (g *replayGenerator) Generate(ctx context.Context, question string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := g.answers[question]
	if !ok {
		return nil, fmt.Errorf("no prediction for %q in %s", question, g.database)
	}
	return &r, nil
}
