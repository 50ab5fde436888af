package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name     string
		setupDir func(t *testing.T, dir string) // setup before running
		args     []string
		wantErr  bool
		wantFile string
	}{
		{
			name:     "init empty directory",
			args:     []string{},
			wantFile: "dcverify.yaml",
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "dcverify.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "dcverify.yaml"), []byte("existing"), 0600)
			},
			args:     []string{"--force"},
			wantFile: "dcverify.yaml",
		},
		{
			name:     "init into new directory",
			args:     []string{"svc"},
			wantFile: "svc/dcverify.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			testutil.Chdir(t, tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "dcverify.yaml already exists")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "dcverify project initialized!")

			data, err := os.ReadFile(filepath.Join(tmpDir, filepath.FromSlash(tt.wantFile)))
			require.NoError(t, err)

			var cfg config.Config
			require.NoError(t, yaml.Unmarshal(data, &cfg))
			require.Len(t, cfg.Adapters, 2)
			assert.Equal(t, "fastapi", cfg.Adapters[0].Type)
			assert.Equal(t, []string{"frontend/src"}, cfg.Adapters[1].SrcPaths)
			assert.Equal(t, "critical", cfg.Rules["type_mismatch"])
			assert.Equal(t, config.DefaultReportPath, cfg.Output.Path)
			assert.NoError(t, cfg.Validate())
		})
	}
}
