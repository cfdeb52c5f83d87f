package blob

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestLayering keeps infrastructure packages behind their facades: only
// internal/blob wraps the blob drivers and only internal/core touches the
// JSON collection files.
func TestLayering(t *testing.T) {
	rules := []struct {
		infra   string
		allowed []string
	}{
		{infra: "papila/internal/infra/blob", allowed: []string{"papila/internal/blob"}},
		{infra: "papila/internal/infra/persistence/jsonfile", allowed: []string{"papila/internal/core"}},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "papila/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		for _, rule := range rules {
			if hasPrefix(pkg.PkgPath, rule.infra) || allowed(pkg.PkgPath, rule.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if hasPrefix(importPath, rule.infra) {
					seen[filepath.Join(pkg.PkgPath, "...")+": "+importPath] = struct{}{}
				}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of infra package: %s", v)
		}
		t.Fatalf("found %d forbidden infra imports", len(violations))
	}
}

func allowed(pkgPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if hasPrefix(pkgPath, p) {
			return true
		}
	}
	return false
}

// hasPrefix matches a package path and its subpackages, ignoring the
// ".test" and "_test" variants packages.Load reports with Tests set.
func hasPrefix(pkgPath, prefix string) bool {
	pkgPath = strings.TrimSuffix(strings.TrimSuffix(pkgPath, ".test"), "_test")
	return pkgPath == prefix || strings.HasPrefix(pkgPath, prefix+"/")
}
