package discover

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/DeusData/phplens/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery, in addition
// to every dot-directory.
var IGNORE_PATTERNS = map[string]bool{
	"bower_components": true, "cache": true, "coverage": true, "dist": true,
	"node_modules": true, "storage": true, "temp": true, "tmp": true,
	"uploads": true, "vendor": true,
}

// skipName reports whether a directory name is never descended into.
func skipName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".") || IGNORE_PATTERNS[name]
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".swp": true, ".bak": true, ".orig": true,
}

// IgnoreFileName is the optional per-workspace list of extra globs.
const IgnoreFileName = ".phplensignore"

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to workspace root, slash-separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	// Extensions overrides the language registry, e.g. [".php", ".inc"].
	Extensions []string
	// Ignore are doublestar globs matched against slash-separated relative paths.
	Ignore []string
	// IgnoreFile is the path to an ignore file (optional). Defaults to
	// .phplensignore in the root.
	IgnoreFile string
}

// Matcher decides whether a path takes part in analysis. The watcher shares
// it with the initial walk so both agree on what is a workspace file.
type Matcher struct {
	extensions map[string]bool
	globs      []string
}

// NewMatcher builds a matcher for the workspace at root.
func NewMatcher(root string, opts *Options) *Matcher {
	m := &Matcher{}
	ignFile := filepath.Join(root, IgnoreFileName)
	if opts != nil {
		if len(opts.Extensions) > 0 {
			m.extensions = make(map[string]bool, len(opts.Extensions))
			for _, ext := range opts.Extensions {
				m.extensions[strings.ToLower(ext)] = true
			}
		}
		m.globs = append(m.globs, opts.Ignore...)
		if opts.IgnoreFile != "" {
			ignFile = opts.IgnoreFile
		}
	}
	extra, _ := loadIgnoreFile(ignFile)
	m.globs = append(m.globs, extra...)
	return m
}

// SkipDir reports whether a directory should not be descended into.
func (m *Matcher) SkipDir(name, rel string) bool {
	if skipName(name) {
		return true
	}
	return m.ignored(rel)
}

func (m *Matcher) ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range m.globs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// File reports the language of a file, or false when it is not analysed.
// rel must be relative to the workspace root.
func (m *Matcher) File(rel string) (lang.Language, bool) {
	for suffix := range IGNORE_SUFFIXES {
		if strings.HasSuffix(rel, suffix) {
			return "", false
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if skipName(part) {
			return "", false
		}
	}
	if m.ignored(rel) {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(rel))
	if m.extensions != nil {
		if m.extensions[ext] {
			return lang.PHP, true
		}
		return "", false
	}
	return lang.LanguageForExtension(ext)
}

// Discover walks a workspace and returns all analysable files in walk order.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := NewMatcher(repoPath, opts)
	var files []FileInfo

	err = filepath.WalkDir(repoPath, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(repoPath, path)

		if d.IsDir() {
			if rel != "." && m.SkipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if l, ok := m.File(rel); ok {
			files = append(files, FileInfo{
				Path:     path,
				RelPath:  filepath.ToSlash(rel),
				Language: l,
			})
		}
		return nil
	})

	return files, err
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
