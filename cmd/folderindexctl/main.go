// Package main provides the entry point for the folderindexctl CLI.
package main

import (
	"os"

	"github.com/foldermcp/folderindex/cmd/folderindexctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
