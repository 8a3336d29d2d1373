package tracker

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Pattern describes how a resource key is referenced in source code.
//
// Expression may contain the placeholders $Key and $File. $File, when
// present, restricts matches to entities with that base name. Without
// Regexp the rest of the expression is matched literally.
type Pattern struct {
	Expression string   `yaml:"expression"`
	Regexp     bool     `yaml:"regexp,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

const (
	keyPlaceholder  = "$Key"
	filePlaceholder = "$File"

	keyClass  = `(?P<key>[\p{L}\p{N}_]+(?:[.\-][\p{L}\p{N}_]+)*)`
	fileClass = `(?P<file>[\p{L}\p{N}_]+)`
)

// identifier matches the tokens compared with keys when no pattern is set.
var identifier = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)

type matcher struct {
	re         *regexp.Regexp
	keyGroup   int
	fileGroup  int // -1 without $File
	extensions map[string]bool
}

func compilePattern(p Pattern) (*matcher, error) {
	expr := p.Expression
	if strings.Count(expr, keyPlaceholder) != 1 {
		return nil, fmt.Errorf("pattern %q: needs exactly one %s", expr, keyPlaceholder)
	}
	if strings.Count(expr, filePlaceholder) > 1 {
		return nil, fmt.Errorf("pattern %q: %s used more than once", expr, filePlaceholder)
	}

	var b strings.Builder
	for expr != "" {
		ki := strings.Index(expr, keyPlaceholder)
		fi := strings.Index(expr, filePlaceholder)
		next, ph, class := ki, keyPlaceholder, keyClass
		if fi >= 0 && (ki < 0 || fi < ki) {
			next, ph, class = fi, filePlaceholder, fileClass
		}
		if next < 0 {
			b.WriteString(literal(expr, p.Regexp))
			break
		}
		b.WriteString(literal(expr[:next], p.Regexp))
		b.WriteString(class)
		expr = expr[next+len(ph):]
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", p.Expression, err)
	}
	m := &matcher{
		re:        re,
		keyGroup:  re.SubexpIndex("key"),
		fileGroup: re.SubexpIndex("file"),
	}
	if len(p.Extensions) > 0 {
		m.extensions = make(map[string]bool, len(p.Extensions))
		for _, ext := range p.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			m.extensions[strings.ToLower(ext)] = true
		}
	}
	return m, nil
}

func literal(s string, isRegexp bool) string {
	if isRegexp {
		return s
	}
	return regexp.QuoteMeta(s)
}

func (m *matcher) appliesTo(path string) bool {
	if m.extensions == nil {
		return true
	}
	return m.extensions[strings.ToLower(filepath.Ext(path))]
}
