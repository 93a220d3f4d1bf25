package hostsfile

import (
	"fmt"
	"runtime"
	"strings"
)

type section struct {
	tag string
}

func newSection(tag string) *section {
	return &section{tag: tag}
}

func (s *section) beginMarker() string {
	return fmt.Sprintf("# DO NOT EDIT %s BEGIN", s.tag)
}

func (s *section) endMarker() string {
	return fmt.Sprintf("# DO NOT EDIT %s END", s.tag)
}

// format renders the full block (including markers) for grouped, or nil if
// grouped is empty.
func (s *section) format(grouped map[string][]string) []string {
	if len(grouped) == 0 {
		return nil
	}

	lines := []string{s.beginMarker()}
	for _, ip := range sortedIPs(grouped) {
		lines = append(lines, formatHostLines(ip, grouped[ip])...)
	}
	lines = append(lines, s.endMarker())
	return lines
}

// formatHostLines follows the original's per-platform layout: Windows gets
// one line per hostname, Unix shares one line per IP with space-joined
// hostnames.
func formatHostLines(ip string, hostnames []string) []string {
	if runtime.GOOS == "windows" {
		lines := make([]string, len(hostnames))
		for i, h := range hostnames {
			lines[i] = ip + " " + h
		}
		return lines
	}
	return []string{ip + " " + strings.Join(hostnames, " ")}
}

type sectionBounds struct {
	begin, end int // -1 when absent
}

func (b sectionBounds) complete() bool { return b.begin >= 0 && b.end >= 0 }
func (b sectionBounds) missing() bool  { return b.begin < 0 && b.end < 0 }

func (s *section) findBounds(lines []string) sectionBounds {
	bounds := sectionBounds{begin: -1, end: -1}
	begin, end := s.beginMarker(), s.endMarker()
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case begin:
			bounds.begin = i
		case end:
			bounds.end = i
		}
	}
	return bounds
}

// applySectionUpdate returns the full new line set and whether a write is
// needed. It errors on a partial marker pair, mirroring the original's
// refusal to guess which half of a corrupted section to trust.
func applySectionUpdate(lines []string, s *section, newSectionLines []string) ([]string, bool, error) {
	bounds := s.findBounds(lines)

	if !bounds.complete() && !bounds.missing() {
		return nil, false, fmt.Errorf("%w: tag %q", ErrMalformed, s.tag)
	}

	if bounds.complete() {
		old := lines[bounds.begin : bounds.end+1]
		if linesEqual(old, newSectionLines) {
			return lines, false, nil
		}
		updated := make([]string, 0, len(lines)-len(old)+len(newSectionLines))
		updated = append(updated, lines[:bounds.begin]...)
		updated = append(updated, newSectionLines...)
		updated = append(updated, lines[bounds.end+1:]...)
		return updated, true, nil
	}

	if len(newSectionLines) == 0 {
		return lines, false, nil
	}
	updated := make([]string, len(lines))
	copy(updated, lines)
	if n := len(updated); n > 0 && updated[n-1] != "" {
		updated = append(updated, "")
	}
	updated = append(updated, newSectionLines...)
	return updated, true, nil
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
