package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestListTemplates verifies that ListTemplates returns the expected set of
// templates embedded in the binary.
func TestListTemplates(t *testing.T) {
	names, err := ListTemplates()
	require.NoError(t, err)
	assert.Contains(t, names, "go-cli", "go-cli template must be listed")
}

// TestTemplateExists_known verifies that TemplateExists returns true for the
// embedded go-cli template.
func TestTemplateExists_known(t *testing.T) {
	assert.True(t, TemplateExists("go-cli"))
}

// TestTemplateExists_unknown verifies that TemplateExists returns false for a
// non-existent template.
func TestTemplateExists_unknown(t *testing.T) {
	assert.False(t, TemplateExists("nonexistent"))
	assert.False(t, TemplateExists(""))
	assert.False(t, TemplateExists("../etc"))
}

// TestRenderTemplate_invalidName verifies that RenderTemplate returns an error
// when the requested template does not exist.
func TestRenderTemplate_invalidName(t *testing.T) {
	dir := t.TempDir()
	_, err := RenderTemplate("nonexistent", dir, TemplateVars{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// TestRenderTemplate_createsDestDir verifies that RenderTemplate creates the
// destination directory when it does not yet exist.
func TestRenderTemplate_createsDestDir(t *testing.T) {
	dir := t.TempDir()
	newDir := filepath.Join(dir, "newproject")

	_, err := RenderTemplate("go-cli", newDir, TemplateVars{
		ProjectName: "myproject",
		Language:    "go",
		ModulePath:  "github.com/example/myproject",
	}, false)
	require.NoError(t, err)

	info, err := os.Stat(newDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestRenderTemplate_createsConfigYAML verifies that the .tmpl file is
// rendered and the extension is stripped (config.yaml.tmpl -> config.yaml).
func TestRenderTemplate_createsConfigYAML(t *testing.T) {
	dir := t.TempDir()
	vars := TemplateVars{
		ProjectName: "test-project",
		Language:    "go",
		ModulePath:  "github.com/example/test-project",
	}

	created, err := RenderTemplate("go-cli", dir, vars, false)
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, ".agentctl", "config.yaml")
	assert.FileExists(t, cfgPath, "config.yaml must be created (extension stripped from .tmpl)")
	assert.NoFileExists(t, cfgPath+".tmpl")
	assert.Contains(t, created, cfgPath)
}

// TestRenderTemplate_substitutesVars verifies that TemplateVars fields are
// correctly substituted into .tmpl files.
func TestRenderTemplate_substitutesVars(t *testing.T) {
	tests := []struct {
		name       string
		vars       TemplateVars
		wantInYAML []string
	}{
		{
			name: "project name and language appear in config.yaml",
			vars: TemplateVars{
				ProjectName: "awesome-cli",
				Language:    "go",
				ModulePath:  "github.com/org/awesome-cli",
			},
			wantInYAML: []string{`name: "awesome-cli"`, `language: "go"`},
		},
		{
			name: "different project name",
			vars: TemplateVars{
				ProjectName: "another-tool",
				Language:    "go",
				ModulePath:  "github.com/org/another-tool",
			},
			wantInYAML: []string{`name: "another-tool"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := RenderTemplate("go-cli", dir, tt.vars, false)
			require.NoError(t, err)

			content, err := os.ReadFile(filepath.Join(dir, ".agentctl", "config.yaml"))
			require.NoError(t, err)

			for _, want := range tt.wantInYAML {
				assert.Contains(t, string(content), want, "config.yaml must contain %q", want)
			}
		})
	}
}

// TestRenderTemplate_renderedYAMLIsValid verifies that the rendered
// config.yaml can be parsed by yaml.v3 into a Config.
func TestRenderTemplate_renderedYAMLIsValid(t *testing.T) {
	dir := t.TempDir()
	vars := TemplateVars{
		ProjectName: "integration-test",
		Language:    "go",
		ModulePath:  "github.com/example/integration-test",
	}

	_, err := RenderTemplate("go-cli", dir, vars, false)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ".agentctl", "config.yaml"))
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, "integration-test", cfg.Project.Name)
	assert.Equal(t, "go", cfg.Project.Language)
}

// TestRenderTemplate_goModSubstitution verifies that go.mod.tmpl is rendered
// with the module path substituted.
func TestRenderTemplate_goModSubstitution(t *testing.T) {
	dir := t.TempDir()
	_, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "my-proj",
		Language:    "go",
		ModulePath:  "github.com/example/my-proj",
	}, false)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "module github.com/example/my-proj")
}

// TestRenderTemplate_doesNotOverwriteExistingFiles verifies that RenderTemplate
// skips files that already exist in the destination directory when force is
// false.
func TestRenderTemplate_doesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".agentctl"), 0o755))
	cfgPath := filepath.Join(dir, ".agentctl", "config.yaml")
	originalContent := "# original content\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(originalContent), 0o644))

	_, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "should-not-appear",
		Language:    "go",
	}, false)
	require.NoError(t, err)

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, originalContent, string(content), "existing config.yaml must not be overwritten")
}

// TestRenderTemplate_forceOverwritesExistingFiles verifies that force=true
// overwrites an existing file.
func TestRenderTemplate_forceOverwritesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".agentctl"), 0o755))
	cfgPath := filepath.Join(dir, ".agentctl", "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("# stale\n"), 0o644))

	_, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "forced",
		Language:    "go",
	}, true)
	require.NoError(t, err)

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "forced")
}

// TestRenderTemplate_filePermissions verifies that created files have 0600
// permissions (RenderTemplate writes with os.WriteFile(..., 0o600)).
func TestRenderTemplate_filePermissions(t *testing.T) {
	dir := t.TempDir()
	_, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "perm-test",
		Language:    "go",
	}, false)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, ".agentctl", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestRenderTemplate_staticFilesNotModified verifies that the rendered
// .gitignore, whose template has no template actions, is non-empty and has no
// unresolved template syntax.
func TestRenderTemplate_staticFilesNotModified(t *testing.T) {
	dir := t.TempDir()
	_, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "static-test",
		Language:    "go",
	}, false)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.True(t, len(content) > 0, ".gitignore must not be empty")
	assert.False(t, strings.Contains(string(content), "{{"), "static file must not contain unresolved template syntax")
}

// TestRenderTemplate_allExpectedFiles verifies the complete set of files
// created by the go-cli template.
func TestRenderTemplate_allExpectedFiles(t *testing.T) {
	dir := t.TempDir()
	created, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "count-test",
		Language:    "go",
		ModulePath:  "github.com/example/count-test",
	}, false)
	require.NoError(t, err)

	relPaths := make(map[string]bool, len(created))
	for _, p := range created {
		rel, err := filepath.Rel(dir, p)
		require.NoError(t, err)
		relPaths[filepath.ToSlash(rel)] = true
	}

	expected := []string{
		".agentctl/config.yaml",
		"go.mod",
		"cmd/app/main.go",
		"README.md",
		".gitignore",
	}

	for _, want := range expected {
		assert.True(t, relPaths[want], "expected file %q to be in created list", want)
	}
	assert.Equal(t, len(expected), len(created), "number of created files must match expected count")
}

// TestRenderTemplate_returnedPathsAreAbsolute verifies that RenderTemplate
// returns absolute file paths.
func TestRenderTemplate_returnedPathsAreAbsolute(t *testing.T) {
	dir := t.TempDir()
	created, err := RenderTemplate("go-cli", dir, TemplateVars{
		ProjectName: "abs-test",
		Language:    "go",
	}, false)
	require.NoError(t, err)
	require.NotEmpty(t, created)

	for _, p := range created {
		assert.True(t, filepath.IsAbs(p), "created path %q must be absolute", p)
	}
}
