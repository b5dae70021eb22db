// Package scanner implements the FileSystem capability from §6: discovering
// indexable files under a folder, reading their bytes, and watching for
// live changes.
package scanner

import "time"

// ContentType is a coarse classification of a file's content, used to
// populate the Document.type field (§3) without involving the Parser
// capability, which is out of scope for this package.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
)

// FileEntry is one discovered file (§6's FileEntry).
type FileEntry struct {
	Path        string // relative to the folder root from Scan; the base name from Metadata
	AbsPath     string
	Size        int64
	ModTime     time.Time
	ContentType ContentType
	Language    string
}

// DefaultMaxFileSize is the default ceiling on indexable file size (10MB),
// kept from the teacher's scanner default.
const DefaultMaxFileSize = 10 * 1024 * 1024

// ScanOptions configures a single Scan call.
type ScanOptions struct {
	MaxFileSize    int64 // 0 means DefaultMaxFileSize
	FollowSymlinks bool
}

var languageMap = map[string]string{
	".go": "go", ".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".py": "python", ".pyw": "python",
	".html": "html", ".htm": "html", ".css": "css", ".scss": "scss",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".xml": "xml",
	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst", ".txt": "text",
	".sh": "shell", ".bash": "shell", ".rb": "ruby", ".rs": "rust", ".java": "java",
	".kt": "kotlin", ".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cs": "csharp",
	".swift": "swift", ".php": "php", ".sql": "sql", "Dockerfile": "dockerfile",
	"Makefile": "makefile",
}

var contentTypeMap = map[string]ContentType{
	"go": ContentTypeCode, "javascript": ContentTypeCode, "typescript": ContentTypeCode,
	"python": ContentTypeCode, "ruby": ContentTypeCode, "rust": ContentTypeCode,
	"java": ContentTypeCode, "kotlin": ContentTypeCode, "c": ContentTypeCode,
	"cpp": ContentTypeCode, "csharp": ContentTypeCode, "swift": ContentTypeCode,
	"php": ContentTypeCode, "sql": ContentTypeCode, "shell": ContentTypeCode,
	"html": ContentTypeCode, "css": ContentTypeCode, "scss": ContentTypeCode,
	"markdown": ContentTypeMarkdown, "rst": ContentTypeMarkdown, "text": ContentTypeText,
	"json": ContentTypeConfig, "yaml": ContentTypeConfig, "toml": ContentTypeConfig,
	"xml": ContentTypeConfig, "dockerfile": ContentTypeConfig, "makefile": ContentTypeConfig,
}

// DetectLanguage detects a language from a path's base name or extension.
func DetectLanguage(path string) string {
	base := baseName(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	if lang, ok := languageMap[extension(path)]; ok {
		return lang
	}
	return ""
}

// DetectContentType maps a detected language to a coarse content type.
func DetectContentType(language string) ContentType {
	if ct, ok := contentTypeMap[language]; ok {
		return ct
	}
	return ContentTypeText
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
