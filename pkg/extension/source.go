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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Resource is the content of one resource file found by a Source.
type Resource struct {
	// Origin names where the content came from, for diagnostics.
	Origin string
	Data   []byte
}

// Source is one place resources are discovered in.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Resources returns every resource stored at path. A path the source does not hold yields no resources
	// and no error.
	Resources(path string) ([]Resource, error)
}

// FSSource serves resources from an fs.FS such as an embed.FS or os.DirFS.
type FSSource struct {
	name string
	fsys fs.FS
}

var _ Source = &FSSource{}

// NewFSSource returns a source reading from fsys.
func NewFSSource(name string, fsys fs.FS) *FSSource {
	return &FSSource{name: name, fsys: fsys}
}

// NewDirSource returns a source reading from a directory on disk.
func NewDirSource(dir string) *FSSource {
	return NewFSSource("dir:"+dir, os.DirFS(dir))
}

// Name implements Source.
func (s *FSSource) Name() string {
	return s.name
}

// Resources implements Source.
func (s *FSSource) Resources(path string) ([]Resource, error) {
	data, err := fs.ReadFile(s.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q from %s: %w", path, s.name, err)
	}
	return []Resource{{Origin: s.name + ":" + path, Data: data}}, nil
}

// SourceSet is the ordered set of sources searched during discovery. Every source is consulted, so
// independently packaged modules can each contribute implementations for the same point.
type SourceSet struct {
	mu      sync.RWMutex
	sources []Source
}

// NewSourceSet returns a set holding sources in order.
func NewSourceSet(sources ...Source) *SourceSet {
	return &SourceSet{sources: append([]Source(nil), sources...)}
}

// Add appends sources to the set. Loaders that already loaded do not see them until reset.
func (s *SourceSet) Add(sources ...Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, sources...)
}

// Sources returns a snapshot of the set.
func (s *SourceSet) Sources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Source(nil), s.sources...)
}

// DefaultSources is the process-wide source set searched by the Default registry.
var DefaultSources = NewSourceSet()

// AddSource appends a source to DefaultSources. Usually called from init() with an embedded FS.
func AddSource(src Source) {
	DefaultSources.Add(src)
}
