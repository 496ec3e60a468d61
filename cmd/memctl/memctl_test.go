package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memchat/internal/repository"
	"memchat/internal/service"
	"memchat/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// testCLI runs memctl against a file store in a temp dir.
type testCLI struct {
	dir       string
	storePath string
}

func newTestCLI(t *testing.T) *testCLI {
	dir := t.TempDir()
	return &testCLI{dir: dir, storePath: filepath.Join(dir, "store.json")}
}

func (c *testCLI) open(ctx context.Context) (*service.MemoryService, func(), error) {
	repo := repository.NewFileRepository(c.storePath, zap.NewNop())
	memory, err := service.LoadMemoryService(ctx, repo, nil, zap.NewNop())
	return memory, func() {}, err
}

func (c *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(c.open)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (c *testCLI) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWriteSearchExport(t *testing.T) {
	cli := newTestCLI(t)

	out, err := cli.run(t, "write", "--domain", "ops", "--tag", "deploy", "Deploys", "run", "at", "9am")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ops/doc_"))

	out, err = cli.run(t, "search", "deploys", "--tag", "deploy")
	require.NoError(t, err)
	assert.Contains(t, out, `1 results for "deploys"`)

	out, err = cli.run(t, "search", "deploys", "--domain", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, `0 results`)

	out, err = cli.run(t, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"Deploys run at 9am"`)

	out, err = cli.run(t, "export", "--format", "yaml")
	require.NoError(t, err)
	var parsed map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Contains(t, parsed, "ops")

	target := filepath.Join(cli.dir, "out.json")
	_, err = cli.run(t, "export", "-o", target)
	require.NoError(t, err)
	assert.FileExists(t, target)

	_, err = cli.run(t, "export", "--format", "xml")
	assert.Error(t, err)

	_, err = cli.run(t, "write", "no domain")
	assert.Error(t, err)
}

func TestValidateAndImport(t *testing.T) {
	source := newTestCLI(t)
	_, err := source.run(t, "write", "--domain", "notes", "remember the milk")
	require.NoError(t, err)
	exported, err := os.ReadFile(source.storePath)
	require.NoError(t, err)

	cli := newTestCLI(t)
	good := cli.writeFile(t, "good.json", string(exported))
	bad := cli.writeFile(t, "bad.json", `{"notes": {"doc_1": {"title": ""}}}`)

	out, err := cli.run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	out, err = cli.run(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "notes/doc_1.title")

	cache := filepath.Join(cli.dir, "cache.json")
	out, err = cli.run(t, "import", "--cache", cache, cli.dir)
	require.Error(t, err, "bad.json is rejected")
	assert.Contains(t, out, "good.json: imported 1 documents in 1 domains")
	assert.Contains(t, out, "bad.json: rejected")

	out, err = cli.run(t, "search", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, "1 results")

	out, err = cli.run(t, "import", "--cache", cache, good)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")

	out, err = cli.run(t, "import", "--cache", cache, "--force", good)
	require.NoError(t, err)
	assert.Contains(t, out, "imported")
}

func TestHashPassword(t *testing.T) {
	cli := newTestCLI(t)

	out, err := cli.run(t, "hash-password", "s3cret")
	require.NoError(t, err)
	assert.True(t, auth.CheckPasswordHash("s3cret", strings.TrimSpace(out)))
}
