package scan

import (
	"path/filepath"
	"strings"
)

// RelevantExtensions are the source file types audited by default.
var RelevantExtensions = []string{
	".py", ".js", ".java", ".html", ".css", ".jsx", ".tsx", ".ts",
	".cpp", ".c", ".h", ".go", ".rb", ".php", ".swift", ".kt",
}

// IgnoreDirs are dependency, VCS and build directories never walked.
var IgnoreDirs = []string{
	"node_modules", "venv", "env", ".git", "__pycache__", "build", "dist",
	".idea", ".vscode", "target", "bin", "obj", "vendor", ".next", ".cache",
}

var languages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".html":  "html",
	".css":   "css",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".go":    "go",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
}

// Language returns the code-fence hint for path, or "text".
func Language(path string) string {
	if l, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	return "text"
}

// IsRelevant reports whether path has one of the default audited extensions.
func IsRelevant(path string) bool {
	_, ok := languages[strings.ToLower(filepath.Ext(path))]
	return ok
}
