package generator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/manifestd/internal/manifest"
)

// readmeCandidates in lookup order. Only the repository root is consulted.
var readmeCandidates = []string{"README.md", "readme.md", "Readme.md"}

// readmeMetadata extracts the project name from the first level-1 heading and
// the description from the first paragraph that follows it. Reading the
// README is still a pure function of the snapshot, so determinism holds.
func readmeMetadata(root string) manifest.Project {
	var src []byte
	for _, name := range readmeCandidates {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err == nil {
			src = data
			break
		}
	}
	if len(src) == 0 {
		return manifest.Project{}
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var project manifest.Project
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && project.Name == "" {
				project.Name = collapseSpace(string(node.Text(src)))
			}
		case *ast.Paragraph:
			if project.Name != "" && project.Description == "" {
				project.Description = collapseSpace(string(node.Text(src)))
			}
		}
		if project.Name != "" && project.Description != "" {
			break
		}
	}
	return project
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
