package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/dcverify/internal/cli/commands"
	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	cfgFile = ""

	cmd := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"check", "watch", "graph", "rules", "history", "init", "version", "completion"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "entry-point", "max-depth", "cache"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestCheck_JSONToStdout(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, root)

	out, _, err := run(t, "check", "--format", "json", "--output", "-")
	require.ErrorIs(t, err, commands.ErrCriticalIssues)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "shop", got["project"])
	summary := got["summary"].(map[string]any)
	assert.InDelta(t, 2, summary["total_chains"], 0)
	assert.InDelta(t, 1, summary["critical"], 0)
	assert.InDelta(t, 1, summary["valid"], 0)
	assert.NoFileExists(t, filepath.Join(root, "report.md"))
}

func TestCheck_FlagsOverrideConfig(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, root)

	_, _, err := run(t, "check", "--output", "custom.json", "--format", "json", "--no-cache")
	require.ErrorIs(t, err, commands.ErrCriticalIssues)

	data := testutil.ReadFile(t, root, "custom.json")
	assert.True(t, json.Valid([]byte(data)))
	assert.NoFileExists(t, filepath.Join(root, ".dcverify", "cache.db"))
	assert.Equal(t, filepath.Join(root, "custom.json"), config.GetCurrentConfig().Output.Path)
}

func TestCheck_ConfigFlag(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, t.TempDir())

	_, _, err := run(t, "--config", filepath.Join(root, "dcverify.yaml"), "check")
	require.ErrorIs(t, err, commands.ErrCriticalIssues)
	assert.FileExists(t, filepath.Join(root, "report.md"))
}

func TestCheck_VerboseLogsToStderr(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, root)

	_, errOut, _ := run(t, "check", "-v")
	assert.Contains(t, errOut, "using config file")
}

func TestCheck_InvalidConfig(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, root)
	t.Setenv("DCVERIFY_OUTPUT__FORMAT", "xml")

	_, _, err := run(t, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRules_IgnoresReportFormat(t *testing.T) {
	root := testutil.SetupTestProject(t, testutil.UsersApp)
	testutil.Chdir(t, root)

	out, _, err := run(t, "rules", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract Rules (3)")
}

func TestVersionFlag(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dcverify "+Version))
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := run(t, "completion", shell)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}

	_, _, err := run(t, "completion", "tcsh")
	assert.Error(t, err)
}
