package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// ServiceLabel names the daemon for launchd and systemd.
const ServiceLabel = "com.discipline.daemon"

// ServiceKind selects the host service manager.
type ServiceKind string

const (
	ServiceLaunchd ServiceKind = "launchd"
	ServiceSystemd ServiceKind = "systemd"
)

// LaunchAgent plist template (runs as user)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>start</string>
        <string>--data-dir</string>
        <string>{{.DataDir}}</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    {{if .System}}<true/>{{else}}<dict>
        <key>Crashed</key>
        <true/>
    </dict>{{end}}

    <key>StandardOutPath</key>
    <string>{{.OutLogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.OutLogPath}}</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=Discipline enforcer daemon ({{.Label}})
After=network-online.target

[Service]
ExecStart={{.ExecutablePath}} start --data-dir {{.DataDir}}
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.OutLogPath}}
StandardError=append:{{.OutLogPath}}

[Install]
WantedBy={{if .System}}multi-user.target{{else}}default.target{{end}}
`

type unitConfig struct {
	Label          string
	ExecutablePath string
	DataDir        string
	OutLogPath     string
	System         bool
}

// ServiceManagerImpl implements domain.ServiceManager for launchd and systemd.
type ServiceManagerImpl struct {
	kind     ServiceKind
	paths    DataPaths
	unitDir  string
	unitPath string
	run      func(name string, args ...string) error
}

// NewServiceManager picks the service manager for this OS and execution mode.
func NewServiceManager(paths DataPaths) *ServiceManagerImpl {
	kind := ServiceSystemd
	if runtime.GOOS == "darwin" {
		kind = ServiceLaunchd
	}
	return NewServiceManagerWithRunner(kind, defaultUnitDir(kind, paths.Mode), paths, runCommand)
}

// NewServiceManagerWithRunner creates a manager writing into unitDir and running commands via run.
func NewServiceManagerWithRunner(kind ServiceKind, unitDir string, paths DataPaths, run func(name string, args ...string) error) *ServiceManagerImpl {
	name := ServiceLabel + ".plist"
	if kind == ServiceSystemd {
		name = "discipline.service"
	}
	return &ServiceManagerImpl{
		kind:     kind,
		paths:    paths,
		unitDir:  unitDir,
		unitPath: filepath.Join(unitDir, name),
		run:      run,
	}
}

func defaultUnitDir(kind ServiceKind, mode ExecMode) string {
	home := GetRealUserHome()
	switch {
	case kind == ServiceLaunchd && mode == ExecModeSystem:
		return "/Library/LaunchDaemons"
	case kind == ServiceLaunchd:
		return filepath.Join(home, "Library/LaunchAgents")
	case mode == ExecModeSystem:
		return "/etc/systemd/system"
	default:
		return filepath.Join(home, ".config/systemd/user")
	}
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, bytes.TrimSpace(out))
	}
	return nil
}

// render creates the service definition for the given exec path.
func (m *ServiceManagerImpl) render(execPath string) ([]byte, error) {
	tmplStr := launchAgentTemplate
	if m.kind == ServiceSystemd {
		tmplStr = systemdUnitTemplate
	}

	cfg := unitConfig{
		Label:          ServiceLabel,
		ExecutablePath: execPath,
		DataDir:        m.paths.DataDir,
		OutLogPath:     filepath.Join(m.paths.DataDir, "discipline.out.log"),
		System:         m.paths.Mode == ExecModeSystem,
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to execute service template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the definition and loads it, replacing any previous install.
func (m *ServiceManagerImpl) Install(execPath string) error {
	if err := os.MkdirAll(m.unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create service directory: %w", err)
	}

	content, err := m.render(execPath)
	if err != nil {
		return err
	}

	if m.IsInstalled() {
		// Not loaded is fine.
		_ = m.unload()
	}

	if err := os.WriteFile(m.unitPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write service definition: %w", err)
	}
	return m.load()
}

// Uninstall unloads and removes the definition. Missing definitions are not an error.
func (m *ServiceManagerImpl) Uninstall() error {
	if !m.IsInstalled() {
		return nil
	}
	_ = m.unload()

	if err := os.Remove(m.unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove service definition: %w", err)
	}
	if m.kind == ServiceSystemd {
		return m.systemctl("daemon-reload")
	}
	return nil
}

// IsInstalled checks if the definition file exists.
func (m *ServiceManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the definition exists but differs from what execPath would produce.
func (m *ServiceManagerImpl) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}

	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.render(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Path returns the definition file path.
func (m *ServiceManagerImpl) Path() string {
	return m.unitPath
}

// Kind returns the service manager in use.
func (m *ServiceManagerImpl) Kind() ServiceKind {
	return m.kind
}

func (m *ServiceManagerImpl) load() error {
	if m.kind == ServiceLaunchd {
		return m.run("launchctl", "load", m.unitPath)
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("enable", "--now", filepath.Base(m.unitPath))
}

func (m *ServiceManagerImpl) unload() error {
	if m.kind == ServiceLaunchd {
		return m.run("launchctl", "unload", m.unitPath)
	}
	return m.systemctl("disable", "--now", filepath.Base(m.unitPath))
}

func (m *ServiceManagerImpl) systemctl(args ...string) error {
	if m.paths.Mode != ExecModeSystem {
		args = append([]string{"--user"}, args...)
	}
	return m.run("systemctl", args...)
}

// Ensure ServiceManagerImpl implements domain.ServiceManager.
var _ domain.ServiceManager = (*ServiceManagerImpl)(nil)
