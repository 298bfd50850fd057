package generator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/manifest"
)

// Inventory generates a manifest listing every file in the snapshot with its
// size and sha256, plus project metadata extracted from the README.
type Inventory struct {
	cfg config.GeneratorConfig
}

// NewInventory creates an inventory generator from configuration.
func NewInventory(cfg config.GeneratorConfig) *Inventory {
	return &Inventory{cfg: cfg}
}

// Generate walks the tree under root and emits canonical manifest JSON.
func (g *Inventory) Generate(ctx context.Context, root string) ([]byte, error) {
	entries, err := g.collect(ctx, root)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	project := g.projectMetadata(root)
	m := manifest.New(project, entries)
	data, err := m.ToJSON()
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	return data, nil
}

func (g *Inventory) collect(ctx context.Context, root string) ([]manifest.FileEntry, error) {
	var entries []manifest.FileEntry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and other specials have no stable byte content.
			return nil
		}
		if !g.selected(rel) {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		sum, herr := hashFile(p)
		if herr != nil {
			return herr
		}

		entries = append(entries, manifest.FileEntry{
			// NFC normalization keeps paths byte-identical across filesystems
			// that store names in different Unicode forms (macOS vs Linux).
			Path:   norm.NFC.String(rel),
			Size:   info.Size(),
			SHA256: sum,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk snapshot: %w", err)
	}
	return entries, nil
}

// selected applies artifact/include/exclude filtering to a slash-relative path.
func (g *Inventory) selected(rel string) bool {
	if rel == g.artifactPath() {
		return false
	}
	for _, pattern := range g.cfg.Exclude {
		if matchGlob(pattern, rel) {
			return false
		}
	}
	if len(g.cfg.Include) == 0 {
		return true
	}
	for _, pattern := range g.cfg.Include {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func (g *Inventory) artifactPath() string {
	if g.cfg.ArtifactPath == "" {
		return config.DefaultArtifactPath
	}
	return g.cfg.ArtifactPath
}

// matchGlob matches a slash-relative path against a pattern. Patterns match
// the full path or the base name; a trailing "/**" matches everything under
// the named directory.
func matchGlob(pattern, rel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(rel))
	return ok
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", p, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// projectMetadata resolves the manifest's project block. An explicit
// configured name wins; otherwise the README supplies name and description;
// the directory name is the last resort.
func (g *Inventory) projectMetadata(root string) manifest.Project {
	project := readmeMetadata(root)
	if g.cfg.ProjectName != "" {
		project.Name = g.cfg.ProjectName
	}
	if project.Name == "" {
		project.Name = filepath.Base(root)
	}
	return project
}
