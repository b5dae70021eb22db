// Package configs embeds the project configuration template so it ships
// inside the folderindexctl binary itself: go:embed at build time means
// `folderindexctl init` works from a source build, a release binary, or a
// Homebrew install without any accompanying data files.
package configs

import _ "embed"

// ProjectConfigTemplate is written by `folderindexctl init` as .folder-mcp.yaml
// in the target folder. See internal/config/config.go for the schema it
// documents and project-config.example.yaml for the annotated template.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
