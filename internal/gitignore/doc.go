// Package gitignore provides gitignore pattern matching functionality.
//
// It implements the gitignore pattern syntax as documented at:
// https://git-scm.com/docs/gitignore
//
// Matcher handles raw pattern compiling and matching, folding case on
// Windows per §3 rule 5's path-equality rule. Rules layers a folder's
// combined ignore surface on top of Matcher: gitignore-sourced patterns
// plus the configuration's supportedExtensions/ignorePatterns globs, and
// the DiffPatterns/MatchesAnyPattern helpers ReconcileGitignore uses to
// re-scan only what a .gitignore edit could have changed.
//
// Features:
//   - Basic pattern matching (*.log, temp/)
//   - Wildcard patterns (*, ?, **)
//   - Rooted patterns (/build)
//   - Negation patterns (!important.log)
//   - Directory-only patterns (build/)
//   - Nested gitignore file support
//   - Thread-safe matching
//   - Case-insensitive matching on Windows, case-sensitive elsewhere
//
// Usage:
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//	m.AddPattern("/build/")
//
//	if m.Match("error.log", false) {
//	    // File is ignored
//	}
//
// For nested gitignore files:
//
//	m.AddFromFile("/path/to/project/.gitignore", "")
//	m.AddFromFile("/path/to/project/src/.gitignore", "src")
//
// For a folder's full ignore surface, use Load/ShouldIgnore instead of
// driving Matcher directly.
package gitignore
