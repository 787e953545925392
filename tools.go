//go:build tools

// Package tools imports dependencies under the tools build tag so that they
// stay in go.mod; some of them are also imported by other packages.
package tools

import (
	_ "github.com/BurntSushi/toml"
	_ "github.com/bmatcuk/doublestar/v4"
	_ "github.com/cespare/xxhash/v2"
	_ "github.com/charmbracelet/bubbles/progress"
	_ "github.com/charmbracelet/lipgloss"
	_ "github.com/charmbracelet/log"
	_ "github.com/spf13/cobra"
	_ "github.com/stretchr/testify/assert"
	_ "golang.org/x/sync/errgroup"
)
