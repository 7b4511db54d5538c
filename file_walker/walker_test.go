package file_walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// fixtureTree builds a small project with every kind of excluded entry
func fixtureTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "README.md"), "# demo\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(root, "src", "deep", "util.py"), "print(1)\n")
	writeFile(t, filepath.Join(root, "node_modules", "x", "index.js"), "x\n")
	writeFile(t, filepath.Join(root, ".env"), "SECRET=1\n")
	writeFile(t, filepath.Join(root, ".github", "ci.yml"), "on: push\n")
	writeFile(t, filepath.Join(root, "logo.png"), "png")
	writeFile(t, filepath.Join(root, "debug.log"), "log")
	writeFile(t, filepath.Join(root, "gen", "out.go"), "package gen\n")
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\ngen/\n")
	return root
}

func rel(t *testing.T, root string, entries []Entry) []string {
	var out []string
	for _, e := range entries {
		r, err := filepath.Rel(root, e.Path)
		require.NoError(t, err)
		if e.IsDir {
			r += "/"
		}
		out = append(out, filepath.ToSlash(r))
	}
	sort.Strings(out)
	return out
}

var expectedFixture = []string{"README.md", "main.go", "src/", "src/deep/", "src/deep/util.py", "src/lib.rs"}

func TestWalkSequential_RespectsRules(t *testing.T) {
	root := fixtureTree(t)

	var entries []Entry
	var skipped []string
	capped, err := WalkSequential(context.Background(), root, Options{
		OnSkip: func(path string, isDir bool) { skipped = append(skipped, filepath.Base(path)) },
	}, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, capped)
	assert.Equal(t, expectedFixture, rel(t, root, entries))
	assert.ElementsMatch(t, []string{"node_modules", ".env", ".github", "logo.png", "debug.log", "gen", ".gitignore"}, skipped)

	for _, e := range entries {
		if e.IsFile() {
			assert.Greater(t, e.Size, int64(0))
			assert.False(t, e.ModTime.IsZero())
		}
	}
}

func TestWalkSequential_LexicalOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"c.go", "a.go", "b.go"} {
		writeFile(t, filepath.Join(root, name), "package x\n")
	}

	var names []string
	_, err := WalkSequential(context.Background(), root, Options{}, func(e Entry) error {
		names = append(names, filepath.Base(e.Path))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, names)
}

func TestWalkSequential_MaxEntries(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%02d.go", i)), "package x\n")
	}

	count := 0
	capped, err := WalkSequential(context.Background(), root, Options{MaxEntries: 4}, func(Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.True(t, capped)
	assert.Equal(t, 4, count)
}

func TestWalkSequential_MaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.go"), "x")
	writeFile(t, filepath.Join(root, "a", "mid.go"), "x")
	writeFile(t, filepath.Join(root, "a", "b", "low.go"), "x")

	var entries []Entry
	_, err := WalkSequential(context.Background(), root, Options{MaxDepth: 2}, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "a/b/", "a/mid.go", "top.go"}, rel(t, root, entries))
}

func TestWalkSequential_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.go"), "package s\n")
	writeFile(t, filepath.Join(root, "real.go"), "package r\n")
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "alias.go")))

	var entries []Entry
	_, err := WalkSequential(context.Background(), root, Options{}, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, rel(t, root, entries))
}

func TestWalkSequential_Cancelled(t *testing.T) {
	root := fixtureTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WalkSequential(ctx, root, Options{}, func(Entry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkParallel_MatchesSequential(t *testing.T) {
	root := fixtureTree(t)

	var mu sync.Mutex
	skipped := 0
	ch, err := WalkParallel(context.Background(), root, Options{
		Workers:   4,
		QueueSize: 2,
		OnSkip: func(string, bool) {
			mu.Lock()
			skipped++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	var entries []Entry
	for e := range ch {
		entries = append(entries, e)
	}
	assert.Equal(t, expectedFixture, rel(t, root, entries))
	assert.Equal(t, 7, skipped)
}

func TestWalkParallel_EarlyReturnOnCancel(t *testing.T) {
	root := t.TempDir()
	for d := 0; d < 20; d++ {
		for f := 0; f < 20; f++ {
			writeFile(t, filepath.Join(root, fmt.Sprintf("d%02d", d), fmt.Sprintf("f%02d.go", f)), "x")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := WalkParallel(ctx, root, Options{Workers: 4, QueueSize: 1})
	require.NoError(t, err)

	got := 0
	for range ch {
		got++
		if got == 5 {
			cancel()
			break
		}
	}
	// the channel must close even though nobody drains the rest
	for range ch {
	}
	assert.Equal(t, 5, got)
}

func TestWalkParallel_InvalidRoot(t *testing.T) {
	_, err := WalkParallel(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.go")
	writeFile(t, file, "x")
	_, err = WalkParallel(context.Background(), file, Options{})
	require.Error(t, err)
}

func BenchmarkWalkParallel(b *testing.B) {
	root := b.TempDir()
	for d := 0; d < 50; d++ {
		for f := 0; f < 20; f++ {
			writeFile(b, filepath.Join(root, fmt.Sprintf("d%02d", d), fmt.Sprintf("f%02d.go", f)), "package x\n")
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch, err := WalkParallel(context.Background(), root, Options{Workers: 8})
		require.NoError(b, err)
		for range ch {
		}
	}
}
