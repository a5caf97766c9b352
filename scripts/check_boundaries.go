package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "parley"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a layer of a service may import besides the standard
// library. Prefixes are relative to the service root unless absolute.
type layerRule struct {
	allowed    []string
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain":      {allowed: []string{"domain"}},
	"ports":       {allowed: []string{"domain", modulePath + "/contracts"}},
	"application": {allowed: []string{"application", "domain", "ports", modulePath + "/contracts"}},
	"transport":   {allowed: []string{"transport"}},
	"adapters": {
		allowed:    []string{"adapters", "application", "domain", "ports", "transport", modulePath + "/contracts"},
		thirdParty: true,
	},
}

// Usage: go run ./scripts/check_boundaries.go [contexts-dir]
func main() {
	root := "contexts"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations := collectViolations(root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks <root>/<context>/<service>/<layer>/... and checks
// every non-test file against its layer's rule.
func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		servicePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[0], parts[1])
		layer := ""
		if len(parts) > 3 {
			layer = parts[2]
		}
		violations = append(violations, validateFile(path, filepath.ToSlash(rel), layer, servicePrefix)...)
		return nil
	})

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})
	return violations
}

func validateFile(path string, name string, layer string, servicePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: name, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		add := func(rule string) {
			violations = append(violations, violation{File: name, Line: line, Import: importPath, Rule: rule})
		}

		// Services talk through contracts and the composition root only.
		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, servicePrefix) {
			add("cross-service imports are forbidden")
			continue
		}

		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		if hasPrefix(importPath, modulePath+"/internal") {
			add(layer + " must not import runtime infrastructure")
			continue
		}
		switch {
		case isStdlib(importPath):
		case strings.HasPrefix(importPath, modulePath+"/"):
			if !isAllowed(importPath, servicePrefix, rule.allowed) {
				add(layer + " import is outside its allowlist")
			}
		case !rule.thirdParty:
			add(layer + " must not import third-party packages")
		}
	}
	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, servicePrefix string, allowed []string) bool {
	for _, p := range allowed {
		if !strings.HasPrefix(p, modulePath+"/") {
			p = servicePrefix + "/" + p
		}
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
