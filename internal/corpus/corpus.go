// Package corpus loads and validates dialogue corpora. A corpus is a
// list of dialogues: dated conversation sessions followed by a probe
// question whose answer depends on what the agent chose to remember.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DateLayout renders session and question dates, e.g.
// "2023/05/20 (Sat) 02:21 UTC".
const DateLayout = "2006/01/02 (Mon) 15:04 UTC"

// dateLayoutShort accepts bare dates in hand-written corpora.
const dateLayoutShort = "2006/01/02"

// Message is one utterance inside a session.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Dialogue is one training episode.
type Dialogue struct {
	ID           string      `json:"question_id,omitempty" yaml:"question_id,omitempty"`
	Question     string      `json:"question" yaml:"question"`
	QuestionDate string      `json:"question_date,omitempty" yaml:"question_date,omitempty"`
	Answer       string      `json:"answer,omitempty" yaml:"answer,omitempty"`
	SessionDates []string    `json:"haystack_dates,omitempty" yaml:"haystack_dates,omitempty"`
	Sessions     [][]Message `json:"haystack_sessions" yaml:"haystack_sessions"`
}

// Turn is a single user utterance under its session date. Sessions
// without a parseable date carry the zero time and ingest under the
// wall clock.
type Turn struct {
	When time.Time
	Text string
}

// ParseDate parses a corpus date, full layout first.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayoutShort, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corpus: unparseable date %q", s)
	}
	return t, nil
}

// Turns flattens the sessions into dated user utterances in corpus
// order. Assistant turns carry no user facts and are dropped.
func (d Dialogue) Turns() []Turn {
	var turns []Turn
	for i, session := range d.Sessions {
		var when time.Time
		if i < len(d.SessionDates) {
			when, _ = ParseDate(d.SessionDates[i])
		}
		for _, msg := range session {
			if msg.Role != "user" {
				continue
			}
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				continue
			}
			turns = append(turns, Turn{When: when, Text: text})
		}
	}
	return turns
}

// AskedAt returns the question date, zero when absent or unparseable.
func (d Dialogue) AskedAt() time.Time {
	t, _ := ParseDate(d.QuestionDate)
	return t
}

// ValidationResult represents the outcome of a corpus lint pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Validate checks a dialogue for completeness.
func (d Dialogue) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	if strings.TrimSpace(d.Question) == "" {
		res.Valid = false
		res.Errors = append(res.Errors, "question is required")
	}
	if len(d.Sessions) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, "at least one haystack session is required")
	}
	if len(d.SessionDates) > 0 && len(d.SessionDates) != len(d.Sessions) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("got %d haystack dates for %d sessions", len(d.SessionDates), len(d.Sessions)))
	}
	for _, date := range d.SessionDates {
		if _, err := ParseDate(date); err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	if strings.TrimSpace(d.Answer) == "" {
		res.Warnings = append(res.Warnings, "no reference answer; dialogue cannot be graded")
	}
	return res
}

// Load reads a corpus file (JSON or YAML), accepting either a list of
// dialogues or a single one.
func Load(path string) ([]Dialogue, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	var dialogues []Dialogue
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &dialogues); err != nil {
			var single Dialogue
			if err2 := json.Unmarshal(data, &single); err2 != nil {
				return nil, fmt.Errorf("failed to unmarshal JSON corpus: %w", err)
			}
			dialogues = []Dialogue{single}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &dialogues); err != nil {
			var single Dialogue
			if err2 := yaml.Unmarshal(data, &single); err2 != nil {
				return nil, fmt.Errorf("failed to unmarshal YAML corpus: %w", err)
			}
			dialogues = []Dialogue{single}
		}
	default:
		return nil, fmt.Errorf("unsupported corpus format: %s (use .json or .yaml)", ext)
	}

	return dialogues, nil
}

// LoadGlob expands a doublestar pattern and concatenates every matched
// corpus file in path order.
func LoadGlob(pattern string) ([]Dialogue, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad corpus pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no corpus files match %q", pattern)
	}
	sort.Strings(paths)

	var dialogues []Dialogue
	for _, path := range paths {
		ds, err := Load(path)
		if err != nil {
			return nil, err
		}
		dialogues = append(dialogues, ds...)
	}
	return dialogues, nil
}

// Split carves the corpus into train and eval partitions. frac is the
// training share, clamped to [0,1]; the split is positional, shuffle
// upstream if ordering matters.
func Split(dialogues []Dialogue, frac float64) (train, eval []Dialogue) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	n := int(float64(len(dialogues)) * frac)
	return dialogues[:n], dialogues[n:]
}
