package lang

// Language represents a supported source language.
type Language string

const (
	PHP Language = "php"
	SQL Language = "sql" // embedded query strings; never discovered as workspace files
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{PHP, SQL}
}

// LanguageSpec defines the tree-sitter node types for a language.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string
	// Indexed reports whether files with these extensions are picked up by workspace discovery.
	Indexed bool

	ModuleNodeTypes  []string
	ClassNodeTypes   []string
	CommentNodeTypes []string
	// BlockNodeTypes lists statement-list node kinds that do not open a scope.
	BlockNodeTypes []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".php").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
// Only languages that take part in workspace indexing are reported.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil || !spec.Indexed {
		return "", false
	}
	return spec.Language, true
}
