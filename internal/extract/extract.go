package extract

import (
	"fmt"
	"os"
	"regexp"

	"github.com/cuongbtq/rhythm/internal/protocol"
)

var playlistPattern = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_\-]+)`)

// Extractor pulls job ids out of an input document with a regular expression
type Extractor struct {
	re    *regexp.Regexp
	group int
}

// New compiles pattern; group selects the capture that holds the job id
func New(pattern string, group int) (*Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid extract pattern: %w", err)
	}
	if group < 0 || group > re.NumSubexp() {
		return nil, fmt.Errorf("extract group %d out of range (pattern has %d groups)", group, re.NumSubexp())
	}
	return &Extractor{re: re, group: group}, nil
}

// Extract returns every match in document order. Repeats are kept.
func (e *Extractor) Extract(text string) []protocol.JobID {
	matches := e.re.FindAllStringSubmatch(text, -1)
	out := make([]protocol.JobID, 0, len(matches))
	for _, m := range matches {
		if id := m[e.group]; id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ExtractFile reads path and extracts from its contents
func (e *Extractor) ExtractFile(path string) ([]protocol.JobID, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input file: %w", err)
	}
	text := string(data)
	return e.Extract(text), text, nil
}

// PlaylistIDs returns the distinct playlist ids referenced by list= parameters
func PlaylistIDs(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range playlistPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
