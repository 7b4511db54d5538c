package code_analyzer

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// UnknownLanguage marks files no language could be named for
const UnknownLanguage = "Unknown"

// knownExtensions pins the common extensions enry finds ambiguous (.rs, .ts, .md, .cs)
var knownExtensions = map[string]string{
	"rs": "Rust", "js": "JavaScript", "jsx": "JavaScript", "ts": "TypeScript", "tsx": "TypeScript",
	"py": "Python", "java": "Java", "cpp": "C++", "cc": "C++", "cxx": "C++", "c": "C",
	"go": "Go", "php": "PHP", "rb": "Ruby", "cs": "C#", "swift": "Swift", "kt": "Kotlin",
	"html": "HTML", "css": "CSS", "scss": "SCSS", "sass": "SCSS", "json": "JSON", "xml": "XML",
	"yml": "YAML", "yaml": "YAML", "toml": "TOML", "md": "Markdown",
}

// DetectLanguage names the language of path from its extension, falling back
// to enry's filename and extension strategies
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	if lang, ok := knownExtensions[ext]; ok {
		return lang
	}
	if lang, _ := enry.GetLanguageByFilename(base); lang != "" {
		return lang
	}
	if lang, _ := enry.GetLanguageByExtension(base); lang != "" {
		return lang
	}
	return UnknownLanguage
}
