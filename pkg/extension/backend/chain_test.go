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

package backend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	logutil "sigs.k8s.io/extension-registry/internal/telemetry/logging"
	"sigs.k8s.io/extension-registry/pkg/container"
	"sigs.k8s.io/extension-registry/pkg/extension"
)

type store interface {
	Backend() string
}

type memoryStore struct{ name string }

func (m *memoryStore) Backend() string { return "memory/" + m.name }

type diskStore struct{ name string }

func (d *diskStore) Backend() string { return "disk/" + d.name }

// fakeResolver returns a fixed answer and counts its calls.
type fakeResolver struct {
	name     string
	priority int
	value    any
	err      error
	panics   bool
	calls    atomic.Int32
}

func (f *fakeResolver) Name() string  { return f.name }
func (f *fakeResolver) Priority() int { return f.priority }
func (f *fakeResolver) Resolve(context.Context, reflect.Type, string) (any, error) {
	f.calls.Add(1)
	if f.panics {
		panic("resolver exploded")
	}
	return f.value, f.err
}

func storePoint() reflect.Type { return extension.PointOf[store]() }

func TestNewChain_SortsByPriority(t *testing.T) {
	t.Parallel()

	late := &fakeResolver{name: "late", priority: 100}
	first := &fakeResolver{name: "first", priority: -1}
	tieA := &fakeResolver{name: "tie-a", priority: 10}
	tieB := &fakeResolver{name: "tie-b", priority: 10}

	chain := NewChain(logutil.NewTestLogger(), late, tieA, first, tieB)

	var names []string
	for _, r := range chain.Resolvers() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"first", "tie-a", "tie-b", "late"}, names)
}

func TestChain_Resolve(t *testing.T) {
	t.Parallel()

	x := &memoryStore{name: "x"}
	y := &diskStore{name: "y"}

	tests := []struct {
		name         string
		resolvers    func() []*fakeResolver
		wantValue    any
		wantResolver string
		wantFailures int
		wantErr      bool
	}{
		{
			name: "First present result wins",
			resolvers: func() []*fakeResolver {
				return []*fakeResolver{
					{name: "b", priority: 2, value: y},
					{name: "a", priority: 1, value: x},
				}
			},
			wantValue:    x,
			wantResolver: "a",
		},
		{
			name: "Absent resolvers are skipped",
			resolvers: func() []*fakeResolver {
				return []*fakeResolver{
					{name: "a", priority: 1},
					{name: "b", priority: 2, value: y},
				}
			},
			wantValue:    y,
			wantResolver: "b",
		},
		{
			name: "Failing and panicking resolvers are skipped",
			resolvers: func() []*fakeResolver {
				return []*fakeResolver{
					{name: "erroring", priority: 1, err: errors.New("connection refused")},
					{name: "panicking", priority: 2, panics: true},
					{name: "healthy", priority: 3, value: x},
				}
			},
			wantValue:    x,
			wantResolver: "healthy",
			wantFailures: 2,
		},
		{
			name: "Exhausted chain is absent",
			resolvers: func() []*fakeResolver {
				return []*fakeResolver{
					{name: "a", priority: 1},
					{name: "b", priority: 2, err: errors.New("timeout")},
				}
			},
			wantFailures: 1,
		},
		{
			name: "Ambiguity stops the chain",
			resolvers: func() []*fakeResolver {
				return []*fakeResolver{
					{name: "a", priority: 1, err: &extension.AmbiguousResolutionError{Key: "k", Resolver: "a", Count: 2}},
					{name: "b", priority: 2, value: x},
				}
			},
			wantErr: true,
		},
		{
			name:      "Empty chain is absent",
			resolvers: func() []*fakeResolver { return nil },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fakes := tc.resolvers()
			resolvers := make([]Resolver, 0, len(fakes))
			for _, f := range fakes {
				resolvers = append(resolvers, f)
			}
			chain := NewChain(logutil.NewTestLogger(), resolvers...)

			ctx := logutil.NewTestLoggerIntoContext(context.Background())
			outcome, err := chain.ResolveOutcome(ctx, storePoint(), "k")
			if tc.wantErr {
				var ambiguous *extension.AmbiguousResolutionError
				require.ErrorAs(t, err, &ambiguous)
				assert.Nil(t, outcome.Value)
				for _, f := range fakes[1:] {
					assert.Zero(t, f.calls.Load(), "resolvers after an ambiguity must not be consulted")
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantValue, outcome.Value)
			assert.Equal(t, tc.wantResolver, outcome.Resolver)
			assert.Len(t, multierr.Errors(outcome.Failures), tc.wantFailures)
		})
	}
}

func TestChain_FailuresNameTheResolver(t *testing.T) {
	t.Parallel()

	chain := NewChain(logutil.NewTestLogger(),
		&fakeResolver{name: "flaky", priority: 1, err: errors.New("connection refused")},
		&fakeResolver{name: "boom", priority: 2, panics: true},
	)

	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	outcome, err := chain.ResolveOutcome(ctx, storePoint(), "k")
	require.NoError(t, err)
	require.Error(t, outcome.Failures)
	assert.Contains(t, outcome.Failures.Error(), "flaky: connection refused")
	assert.Contains(t, outcome.Failures.Error(), "boom: resolver panicked: resolver exploded")
}

func TestChain_LogsToContextLogger(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		lines []string
	)
	ctxLogger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{})

	// The chain's own logger discards, so anything logged came from the context.
	chain := NewChain(logr.Discard(), &fakeResolver{name: "flaky", priority: 1, err: errors.New("connection refused")})
	ctx := logr.NewContext(context.Background(), ctxLogger.WithName("request"))

	_, err := chain.Resolve(ctx, storePoint(), "k")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "request/backend")
	assert.Contains(t, lines[0], `"resolver"="flaky"`)
	assert.Contains(t, lines[0], `"error"="connection refused"`)
}

func TestResolve_Typed(t *testing.T) {
	t.Parallel()

	x := &memoryStore{name: "x"}
	chain := NewChain(logutil.NewTestLogger(), &fakeResolver{name: "a", value: x})

	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	got, err := Resolve[store](ctx, chain, "k")
	require.NoError(t, err)
	assert.Same(t, x, got)

	wrong := NewChain(logutil.NewTestLogger(), &fakeResolver{name: "a", value: "not a store"})
	_, err = Resolve[store](context.Background(), wrong, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolved object is type string")

	empty := NewChain(logutil.NewTestLogger())
	got, err = Resolve[store](context.Background(), empty, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestChain_ContainerBeforeExtensions wires both real resolvers: container objects shadow discovered extensions
// and unknown names fall through to the registry.
func TestChain_ContainerBeforeExtensions(t *testing.T) {
	t.Parallel()

	catalog := extension.NewCatalog()
	catalog.Declare(storePoint(), extension.Descriptor{Name: "store", DefaultKey: "memory"})
	catalog.Provide("store.Memory", extension.NewImplementation(func() (*memoryStore, error) {
		return &memoryStore{name: "extension"}, nil
	}))
	catalog.Provide("store.Disk", extension.NewImplementation(func() (*diskStore, error) {
		return &diskStore{name: "extension"}, nil
	}))
	sources := extension.NewSourceSet(extension.NewFSSource("test", fstest.MapFS{
		"extensions/store": &fstest.MapFile{Data: []byte("memory=store.Memory\ndisk=store.Disk\n")},
	}))
	registry := extension.NewRegistry(
		extension.WithCatalog(catalog),
		extension.WithSources(sources),
		extension.WithLogger(logutil.NewTestLogger()),
	)

	objects := container.New(context.Background())
	hosted := &memoryStore{name: "hosted"}
	require.NoError(t, container.Register[store](objects, "memory", hosted))

	chain := NewChain(logutil.NewTestLogger(),
		NewExtensionResolver(registry, 100),
		NewContainerResolver(objects, 0),
	)

	tests := []struct {
		key          string
		want         string
		wantResolver string
	}{
		{key: "memory", want: "memory/hosted", wantResolver: ContainerResolverName},
		{key: "disk", want: "disk/extension", wantResolver: ExtensionResolverName},
		{key: "tape", want: "", wantResolver: ""},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("key=%s", tc.key), func(t *testing.T) {
			outcome, err := chain.ResolveOutcome(context.Background(), storePoint(), tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.wantResolver, outcome.Resolver)
			if tc.want == "" {
				assert.Nil(t, outcome.Value)
				return
			}
			require.Implements(t, (*store)(nil), outcome.Value)
			assert.Equal(t, tc.want, outcome.Value.(store).Backend())
		})
	}
}
