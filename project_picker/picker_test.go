package project_picker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/project_db"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestProjectDescription(t *testing.T) {
	cases := map[string]struct {
		files map[string]string
		want  string
	}{
		"package.json": {
			files: map[string]string{"package.json": `{"name":"web","description":"A web app"}`},
			want:  "A web app",
		},
		"cargo": {
			files: map[string]string{"Cargo.toml": "[package]\nname = \"cli\"\ndescription = \"Fast CLI\"\n"},
			want:  "Fast CLI",
		},
		"readme heading": {
			files: map[string]string{"README.md": "# My Tool\n\nmore text\n"},
			want:  "My Tool",
		},
		"package.json without description falls through": {
			files: map[string]string{"package.json": `{"name":"x"}`, "README.txt": "Plain readme\n"},
			want:  "Plain readme",
		},
		"long readme line": {
			files: map[string]string{"README.md": fmt.Sprintf("%0250d\n", 1)},
			want:  "",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for f, content := range tc.files {
				writeFile(t, filepath.Join(dir, f), content)
			}
			assert.Equal(t, tc.want, ProjectDescription(dir))
		})
	}
}

func TestCountFiles_Capped(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("f%d.go", i)), "package f\n")
	}
	writeFile(t, filepath.Join(dir, "logo.png"), "png")

	n, capped := CountFiles(context.Background(), dir)
	assert.Equal(t, 5, n)
	assert.False(t, capped)

	big := t.TempDir()
	for i := 0; i < MaxCountedEntries+5; i++ {
		writeFile(t, filepath.Join(big, fmt.Sprintf("f%04d.txt", i)), "x")
	}
	n, capped = CountFiles(context.Background(), big)
	assert.Equal(t, MaxCountedEntries, n)
	assert.True(t, capped)
}

func TestCountFiles_BelowDeniedDirectoryName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bin", "tool")
	writeFile(t, filepath.Join(dir, "main.go"), "package main\n")
	writeFile(t, filepath.Join(dir, "target", "out.rs"), "fn x(){}\n")

	n, capped := CountFiles(context.Background(), dir)
	assert.Equal(t, 1, n)
	assert.False(t, capped)
}

func TestPicker_ListAndCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "beta", "go.mod"), "module beta\n")
	writeFile(t, filepath.Join(root, "Alpha", "package.json"), `{"description":"alpha app"}`)
	writeFile(t, filepath.Join(root, "Alpha", "index.js"), "console.log(1)\n")
	writeFile(t, filepath.Join(root, "notes", "todo.txt"), "nothing here\n")
	writeFile(t, filepath.Join(root, ".hidden", "go.mod"), "module hidden\n")
	writeFile(t, filepath.Join(root, "node_modules", "package.json"), "{}")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "beta", ".git"), 0755))

	backend, err := cache_store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	dirs := cache_store.NewDirectoryMetaCache(backend, cache_store.BinaryCodec{}, time.Hour, cache_store.NewCacheStats("dirs", nil))

	db, err := project_db.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	picker := New(dirs, db)
	ctx := context.Background()

	projects, err := picker.List(ctx, root)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.Equal(t, "alpha app", projects[0].Description)
	assert.Equal(t, 2, projects[0].FileCount)
	assert.False(t, projects[0].IsCounting)
	assert.Equal(t, "beta", projects[1].Name)
	assert.True(t, projects[1].IsGitRepo)

	stored, err := db.GetProjectByPath(ctx, filepath.Join(root, "Alpha"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "alpha app", stored.Description)

	// the second listing is answered from the directory cache
	before := dirs.Stats().CacheHits
	again, err := picker.List(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, projects, again)
	assert.Equal(t, before+2, dirs.Stats().CacheHits)
}

func TestPicker_InvalidRoot(t *testing.T) {
	_, err := New(nil, nil).List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
