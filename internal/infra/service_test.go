package infra

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner captures service manager commands.
type recordingRunner struct {
	calls []string
	err   error
}

func (r *recordingRunner) run(name string, args ...string) error {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return r.err
}

func TestServiceManager_Install(t *testing.T) {
	tests := []struct {
		name      string
		kind      ServiceKind
		mode      ExecMode
		wantFile  string
		wantText  []string
		wantCalls []string
	}{
		{
			name:      "launchd user agent",
			kind:      ServiceLaunchd,
			mode:      ExecModeUser,
			wantFile:  ServiceLabel + ".plist",
			wantText:  []string{"<string>/usr/local/bin/discipline</string>", "<string>--data-dir</string>", "<key>Crashed</key>"},
			wantCalls: []string{"launchctl load"},
		},
		{
			name:      "launchd system daemon",
			kind:      ServiceLaunchd,
			mode:      ExecModeSystem,
			wantFile:  ServiceLabel + ".plist",
			wantText:  []string{"<key>KeepAlive</key>\n    <true/>"},
			wantCalls: []string{"launchctl load"},
		},
		{
			name:      "systemd user unit",
			kind:      ServiceSystemd,
			mode:      ExecModeUser,
			wantFile:  "discipline.service",
			wantText:  []string{"ExecStart=/usr/local/bin/discipline start --data-dir", "WantedBy=default.target"},
			wantCalls: []string{"systemctl --user daemon-reload", "systemctl --user enable --now discipline.service"},
		},
		{
			name:      "systemd system unit",
			kind:      ServiceSystemd,
			mode:      ExecModeSystem,
			wantFile:  "discipline.service",
			wantText:  []string{"WantedBy=multi-user.target"},
			wantCalls: []string{"systemctl daemon-reload", "systemctl enable --now discipline.service"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unitDir := t.TempDir()
			runner := &recordingRunner{}
			m := NewServiceManagerWithRunner(tt.kind, unitDir, DataPathsFor(tt.mode, t.TempDir()), runner.run)

			assert.False(t, m.IsInstalled())
			require.NoError(t, m.Install("/usr/local/bin/discipline"))

			assert.True(t, m.IsInstalled())
			assert.True(t, strings.HasSuffix(m.Path(), tt.wantFile))

			content, err := os.ReadFile(m.Path())
			require.NoError(t, err)
			for _, want := range tt.wantText {
				assert.Contains(t, string(content), want)
			}

			require.Len(t, runner.calls, len(tt.wantCalls))
			for i, want := range tt.wantCalls {
				assert.True(t, strings.HasPrefix(runner.calls[i], want), "call %d: %s", i, runner.calls[i])
			}
		})
	}
}

func TestServiceManager_NeedsUpdate(t *testing.T) {
	runner := &recordingRunner{}
	m := NewServiceManagerWithRunner(ServiceSystemd, t.TempDir(), DataPathsFor(ExecModeUser, t.TempDir()), runner.run)

	assert.False(t, m.NeedsUpdate("/usr/local/bin/discipline"), "not installed")

	require.NoError(t, m.Install("/usr/local/bin/discipline"))
	assert.False(t, m.NeedsUpdate("/usr/local/bin/discipline"))
	assert.True(t, m.NeedsUpdate("/opt/discipline/bin/discipline"))
}

func TestServiceManager_ReinstallUnloadsFirst(t *testing.T) {
	runner := &recordingRunner{}
	m := NewServiceManagerWithRunner(ServiceLaunchd, t.TempDir(), DataPathsFor(ExecModeUser, t.TempDir()), runner.run)

	require.NoError(t, m.Install("/a/discipline"))
	require.NoError(t, m.Install("/b/discipline"))

	require.Len(t, runner.calls, 3)
	assert.True(t, strings.HasPrefix(runner.calls[1], "launchctl unload"))
	assert.False(t, m.NeedsUpdate("/b/discipline"))
}

func TestServiceManager_Uninstall(t *testing.T) {
	runner := &recordingRunner{}
	m := NewServiceManagerWithRunner(ServiceSystemd, t.TempDir(), DataPathsFor(ExecModeUser, t.TempDir()), runner.run)

	require.NoError(t, m.Uninstall(), "missing definition is not an error")
	assert.Empty(t, runner.calls)

	require.NoError(t, m.Install("/usr/local/bin/discipline"))
	require.NoError(t, m.Uninstall())
	assert.False(t, m.IsInstalled())
	assert.Equal(t, "systemctl --user daemon-reload", runner.calls[len(runner.calls)-1])
}

func TestServiceManager_LoadFailureIsReturned(t *testing.T) {
	runner := &recordingRunner{err: errors.New("launchctl: permission denied")}
	m := NewServiceManagerWithRunner(ServiceLaunchd, t.TempDir(), DataPathsFor(ExecModeUser, t.TempDir()), runner.run)

	err := m.Install("/usr/local/bin/discipline")
	assert.ErrorContains(t, err, "permission denied")
	assert.True(t, m.IsInstalled(), "definition stays for a retry")
}
