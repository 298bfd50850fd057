package generator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/manifest"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

func generate(t *testing.T, root string, cfg config.GeneratorConfig) *manifest.Manifest {
	t.Helper()
	data, err := NewInventory(cfg).Generate(context.Background(), root)
	require.NoError(t, err)
	m, err := manifest.FromJSON(data)
	require.NoError(t, err)
	return m
}

func TestGenerateDeterministic(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":         "print('hi')\n",
		"libs/display.py": "class Display: pass\n",
		"README.md":       "# Widget\n\nDrives the demo board.\n",
	})

	gen := NewInventory(config.GeneratorConfig{})
	first, err := gen.Generate(context.Background(), root)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, first, second, "two invocations over the same snapshot must be byte-identical")
}

func TestGenerateInventoryContents(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":         "print('hi')\n",
		"libs/display.py": "class Display: pass\n",
	})

	m := generate(t, root, config.GeneratorConfig{})
	require.Equal(t, 2, m.FileCount)
	assert.Equal(t, "libs/display.py", m.Files[0].Path)
	assert.Equal(t, "main.py", m.Files[1].Path)
	for _, f := range m.Files {
		assert.Len(t, f.SHA256, 64)
		assert.Positive(t, f.Size)
	}
}

func TestGenerateSkipsGitAndArtifact(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":           "x\n",
		".git/config":       "[core]\n",
		"manifest.json":     "{}\n",
		".git/objects/deep": "blob\n",
	})

	m := generate(t, root, config.GeneratorConfig{ArtifactPath: "manifest.json"})
	require.Equal(t, 1, m.FileCount)
	assert.Equal(t, "main.py", m.Files[0].Path)
}

func TestGenerateExcludeAndInclude(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":              "x\n",
		"notes.tmp":            "scratch\n",
		".github/workflows/ci": "jobs\n",
		"docs/guide.md":        "hello\n",
	})

	m := generate(t, root, config.GeneratorConfig{
		Exclude: []string{"*.tmp", ".github/**"},
	})
	paths := []string{}
	for _, f := range m.Files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"main.py", "docs/guide.md"}, paths)

	m = generate(t, root, config.GeneratorConfig{Include: []string{"*.py"}})
	require.Equal(t, 1, m.FileCount)
	assert.Equal(t, "main.py", m.Files[0].Path)
}

func TestProjectMetadataFromReadme(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md": "# Widget Firmware\n\nDrives the demo board over SPI.\n\nMore text.\n",
		"main.py":   "x\n",
	})

	m := generate(t, root, config.GeneratorConfig{})
	assert.Equal(t, "Widget Firmware", m.Project.Name)
	assert.Equal(t, "Drives the demo board over SPI.", m.Project.Description)
}

func TestProjectNameOverrideAndFallback(t *testing.T) {
	root := writeTree(t, map[string]string{"main.py": "x\n"})

	m := generate(t, root, config.GeneratorConfig{ProjectName: "configured"})
	assert.Equal(t, "configured", m.Project.Name)

	m = generate(t, root, config.GeneratorConfig{})
	assert.Equal(t, filepath.Base(root), m.Project.Name, "directory name fallback without README")
}

func TestGenerateCancelledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"main.py": "x\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInventory(config.GeneratorConfig{}).Generate(ctx, root)
	require.Error(t, err)
	var generr *GenerationError
	assert.ErrorAs(t, err, &generr)
}

func TestGenerateMissingRoot(t *testing.T) {
	_, err := NewInventory(config.GeneratorConfig{}).Generate(context.Background(), filepath.Join(t.TempDir(), "gone"))
	var generr *GenerationError
	assert.ErrorAs(t, err, &generr)
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, rel string
		want         bool
	}{
		{"*.tmp", "notes.tmp", true},
		{"*.tmp", "deep/notes.tmp", true}, // base-name match
		{".github/**", ".github/workflows/ci", true},
		{".github/**", ".github", true},
		{".github/**", "other/ci", false},
		{"docs/*.md", "docs/guide.md", true},
		{"docs/*.md", "docs/sub/guide.md", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchGlob(tc.pattern, tc.rel), "pattern=%s rel=%s", tc.pattern, tc.rel)
	}
}
