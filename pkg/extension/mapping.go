/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package extension

import (
	"bufio"
	"bytes"
	"strings"
)

// MappingEntry is one "key=identifier" line of a resource.
type MappingEntry struct {
	Key    string
	ID     string
	Origin string
	Line   int
}

// ParseMapping parses the content of one resource. Lines that are not comments, blank, or a valid
// "key=identifier" pair are returned as warnings and skipped.
func ParseMapping(origin string, data []byte) ([]MappingEntry, []*ParseWarning) {
	var (
		entries  []MappingEntry
		warnings []*ParseWarning
	)

	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	// Lines have no length limit.
	reader := bufio.NewReader(bytes.NewReader(data))
	for lineNo := 1; ; lineNo++ {
		raw, err := reader.ReadString('\n')
		if raw == "" && err != nil {
			break
		}
		entry, warning, ok := parseLine(origin, lineNo, raw)
		switch {
		case warning != nil:
			warnings = append(warnings, warning)
		case ok:
			entries = append(entries, entry)
		}
		if err != nil {
			break
		}
	}

	return entries, warnings
}

// parseLine parses one raw line. ok is false for blank and comment lines and for malformed ones, which also
// return a warning.
func parseLine(origin string, lineNo int, raw string) (MappingEntry, *ParseWarning, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return MappingEntry{}, nil, false
	}

	key, id, found := strings.Cut(line, "=")
	key, id = strings.TrimSpace(key), strings.TrimSpace(id)
	switch {
	case !found:
		return MappingEntry{}, &ParseWarning{Origin: origin, Line: lineNo, Reason: "expected key=identifier"}, false
	case key == "":
		return MappingEntry{}, &ParseWarning{Origin: origin, Line: lineNo, Reason: "empty key"}, false
	case id == "":
		return MappingEntry{}, &ParseWarning{Origin: origin, Line: lineNo, Reason: "empty implementation identifier for key " + key}, false
	}
	return MappingEntry{Key: key, ID: id, Origin: origin, Line: lineNo}, nil, true
}

// mergeMapping adds entries to merged. Re-declaring a key with the same identifier is a no-op; a different
// identifier is a DuplicateKeyError.
func mergeMapping(point string, merged map[string]MappingEntry, entries []MappingEntry) error {
	for _, entry := range entries {
		existing, ok := merged[entry.Key]
		if !ok {
			merged[entry.Key] = entry
			continue
		}
		if existing.ID != entry.ID {
			return &DuplicateKeyError{
				Point:             point,
				Key:               entry.Key,
				Existing:          existing.ID,
				ExistingOrigin:    existing.Origin,
				Conflicting:       entry.ID,
				ConflictingOrigin: entry.Origin,
			}
		}
	}
	return nil
}
