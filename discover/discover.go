// Package discover walks a source tree for resource files and for the
// source files scanned by the code reference tracker.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/minios-linux/reskit/resfile"
	"github.com/minios-linux/reskit/resource"
)

// SourceExtensions maps source file extensions to language names.
var SourceExtensions = map[string]string{
	".go":     "Go",
	".cs":     "C#",
	".vb":     "Visual Basic",
	".xaml":   "XAML",
	".cshtml": "Razor",
	".razor":  "Razor",
	".java":   "Java",
	".kt":     "Kotlin",
	".py":     "Python",
	".rb":     "Ruby",
	".erb":    "Ruby",
	".js":     "JavaScript",
	".jsx":    "JavaScript",
	".ts":     "TypeScript",
	".tsx":    "TypeScript",
	".c":      "C",
	".h":      "C",
	".cpp":    "C++",
	".hpp":    "C++",
	".php":    "PHP",
	".html":   "HTML",
}

// skipDirs contains directory names skipped during scanning.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	"dist":         true,
	"bin":          true,
	"obj":          true,
}

// skipFiles are well-known manifests that share a resource extension.
var skipFiles = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"tsconfig.json":     true,
	"jsconfig.json":     true,
	"composer.json":     true,
	".reskit.yaml":      true,
}

// projectMarkers are file names or glob patterns whose presence makes a
// directory the root of a project.
var projectMarkers = []string{"go.mod", "package.json", "pom.xml", "build.gradle", "build.gradle.kts", "*.csproj", "*.vbproj"}

// Options configures ResourceFiles.
type Options struct {
	// Extensions lists the resource file extensions. Defaults to
	// resfile.Extensions.
	Extensions []string
	// Exclude drops files whose slash-separated path relative to the root
	// matches.
	Exclude *regexp.Regexp
}

func (o Options) extensions() map[string]bool {
	exts := o.Extensions
	if len(exts) == 0 {
		exts = resfile.Extensions
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[strings.ToLower(e)] = true
	}
	return m
}

// ---------------------------------------------------------------------------
// Resource files
// ---------------------------------------------------------------------------

// ResourceFiles returns the resource files below root, sorted by path.
// Each file belongs to the nearest enclosing directory holding a project
// marker (go.mod, package.json, *.csproj, ...), or to root itself. The
// project name is the slash path of that directory relative to root, or
// the base name of root.
func ResourceFiles(root string, opts Options) ([]resource.FileRef, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	exts := opts.extensions()
	projects := make(map[string]string)

	var refs []resource.FileRef
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if path != abs && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] || skipFiles[d.Name()] {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return nil
		}
		if opts.Exclude != nil && opts.Exclude.MatchString(filepath.ToSlash(rel)) {
			return nil
		}

		projDir := projectDir(abs, filepath.Dir(path), projects)
		relToProject, err := filepath.Rel(projDir, path)
		if err != nil {
			return nil
		}
		refs = append(refs, resource.FileRef{
			Path:         path,
			Project:      projectName(abs, projDir),
			RelativePath: filepath.ToSlash(relToProject),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// projectDir returns the nearest directory at or above dir, but not above
// root, that holds a project marker. Results are cached per directory.
func projectDir(root, dir string, cache map[string]string) string {
	if p, ok := cache[dir]; ok {
		return p
	}
	var p string
	switch {
	case hasMarker(dir):
		p = dir
	case dir == root || !strings.HasPrefix(dir, root):
		p = root
	default:
		p = projectDir(root, filepath.Dir(dir), cache)
	}
	cache[dir] = p
	return p
}

func hasMarker(dir string) bool {
	for _, m := range projectMarkers {
		if strings.ContainsRune(m, '*') {
			if matches, _ := filepath.Glob(filepath.Join(dir, m)); len(matches) > 0 {
				return true
			}
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

func projectName(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return filepath.Base(root)
	}
	return filepath.ToSlash(rel)
}

// ---------------------------------------------------------------------------
// Source files
// ---------------------------------------------------------------------------

// SourceFiles recursively finds the source files in dirs. When exts is
// empty every extension of SourceExtensions is accepted. The result is
// deduplicated and sorted.
func SourceFiles(dirs []string, exts []string) ([]string, error) {
	accept := make(map[string]bool)
	if len(exts) == 0 {
		for ext := range SourceExtensions {
			accept[ext] = true
		}
	}
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		accept[strings.ToLower(e)] = true
	}

	var files []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != dir && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if accept[strings.ToLower(filepath.Ext(path))] && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// FilesByLanguage groups source files by language name.
func FilesByLanguage(files []string) map[string][]string {
	result := make(map[string][]string)
	for _, f := range files {
		if lang, ok := SourceExtensions[strings.ToLower(filepath.Ext(f))]; ok {
			result[lang] = append(result[lang], f)
		}
	}
	return result
}

// DescribeFiles returns a human-readable summary such as "3 C#, 1 Go".
func DescribeFiles(files []string) string {
	byLang := FilesByLanguage(files)
	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	parts := make([]string, 0, len(langs))
	for _, lang := range langs {
		parts = append(parts, fmt.Sprintf("%d %s", len(byLang[lang]), lang))
	}
	return strings.Join(parts, ", ")
}
