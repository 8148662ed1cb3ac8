package loader

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseTestCase parses a test case from YAML bytes.
func ParseTestCase(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		le := &LoadError{Message: "failed to parse YAML", Cause: err}
		var te *yaml.TypeError
		if !errors.As(err, &te) {
			le.Line = yamlErrorLine(err)
		}
		return nil, le
	}

	if tc.ID == "" {
		return nil, &LoadError{Message: "test case ID is required"}
	}
	if len(tc.Steps) == 0 {
		return nil, &LoadError{Message: "test case must have at least one step"}
	}
	for i, s := range tc.Steps {
		if s.Action == "" {
			return nil, &LoadError{Message: fmt.Sprintf("step %d has no action", i+1)}
		}
	}
	return &tc, nil
}

// yamlErrorLine extracts the line from a yaml.v3 syntax error
// ("yaml: line 3: ...").
func yamlErrorLine(err error) int {
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr != nil {
		return 0
	}
	return line
}

// LoadTestCase loads a test case from a file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	tc, err := ParseTestCase(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return tc, nil
}

// LoadDirectory loads all .yaml/.yml test cases in dir, sorted by file name.
func LoadDirectory(dir string) ([]*TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}

	var cases []*TestCase
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		tc, err := LoadTestCase(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// LoadDirectoryRecursive loads all test cases below dir.
func LoadDirectoryRecursive(dir string) ([]*TestCase, error) {
	var cases []*TestCase
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		tc, err := LoadTestCase(p)
		if err != nil {
			return err
		}
		cases = append(cases, tc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}

// Load loads a single file or, for a directory, everything below it.
func Load(p string) ([]*TestCase, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, &LoadError{File: p, Message: "failed to stat", Cause: err}
	}
	if info.IsDir() {
		return LoadDirectoryRecursive(p)
	}
	tc, err := LoadTestCase(p)
	if err != nil {
		return nil, err
	}
	return []*TestCase{tc}, nil
}

// FilterByPattern keeps the cases whose ID matches any of the
// comma-separated glob patterns (e.g. "TC-STREAM-*,TC-SUB-001"). An empty
// pattern keeps everything.
func FilterByPattern(cases []*TestCase, pattern string) []*TestCase {
	if strings.TrimSpace(pattern) == "" {
		return cases
	}
	var globs []string
	for _, g := range strings.Split(pattern, ",") {
		if g = strings.TrimSpace(g); g != "" {
			globs = append(globs, g)
		}
	}

	var out []*TestCase
	for _, tc := range cases {
		for _, g := range globs {
			if ok, _ := path.Match(g, tc.ID); ok {
				out = append(out, tc)
				break
			}
		}
	}
	return out
}

// FilterByTags keeps the cases carrying at least one of tags.
func FilterByTags(cases []*TestCase, tags []string) []*TestCase {
	if len(tags) == 0 {
		return cases
	}
	var out []*TestCase
	for _, tc := range cases {
		for _, t := range tags {
			if tc.HasTag(t) {
				out = append(out, tc)
				break
			}
		}
	}
	return out
}

// SortByID orders cases by ID.
func SortByID(cases []*TestCase) {
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
