package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const serviceLabel = "dev.allaspects.genrelay"

// launchdPlistTemplate runs the daemon as a macOS launchd user agent.
const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>start</string>
        <string>--foreground</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.DataDir}}/genrelay.out.log</string>
    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/genrelay.err.log</string>
    <key>ProcessType</key>
    <string>Background</string>
    <key>ThrottleInterval</key>
    <integer>5</integer>
</dict>
</plist>
`

// systemdUnitTemplate runs the daemon as a systemd user service.
const systemdUnitTemplate = `[Unit]
Description=genrelay generation orchestrator
After=network-online.target

[Service]
Type=simple
ExecStart={{.ProgramPath}} start --foreground
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type serviceData struct {
	Label       string
	ProgramPath string
	DataDir     string
}

// serviceManager knows where one init system keeps user units and how to
// (re)load them.
type serviceManager struct {
	template string
	path     func(home string) string
	load     [][]string
	unload   [][]string
}

func managerFor(goos string) (serviceManager, error) {
	switch goos {
	case "darwin":
		return serviceManager{
			template: launchdPlistTemplate,
			path: func(home string) string {
				return filepath.Join(home, "Library", "LaunchAgents", serviceLabel+".plist")
			},
			load:   [][]string{{"launchctl", "load", "{{path}}"}},
			unload: [][]string{{"launchctl", "unload", "{{path}}"}},
		}, nil
	case "linux":
		return serviceManager{
			template: systemdUnitTemplate,
			path: func(home string) string {
				return filepath.Join(home, ".config", "systemd", "user", "genrelay.service")
			},
			load: [][]string{
				{"systemctl", "--user", "daemon-reload"},
				{"systemctl", "--user", "enable", "--now", "genrelay.service"},
			},
			unload: [][]string{{"systemctl", "--user", "disable", "--now", "genrelay.service"}},
		}, nil
	default:
		return serviceManager{}, fmt.Errorf("install-service is not supported on %s", goos)
	}
}

// renderService fills the unit template for the current platform.
func renderService(m serviceManager, data serviceData) ([]byte, error) {
	tmpl, err := template.New("service").Parse(m.template)
	if err != nil {
		return nil, fmt.Errorf("parsing service template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering service unit: %w", err)
	}
	return buf.Bytes(), nil
}

// InstallService writes a launchd agent (macOS) or systemd user unit
// (Linux) that starts the daemon at login, then loads it.
func InstallService(dataDir string) error {
	m, err := managerFor(runtime.GOOS)
	if err != nil {
		return err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}

	dataDir = expandHome(dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	unit, err := renderService(m, serviceData{Label: serviceLabel, ProgramPath: execPath, DataDir: dataDir})
	if err != nil {
		return err
	}
	unitPath := m.path(homeDir)
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(unitPath), err)
	}
	if err := os.WriteFile(unitPath, unit, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", unitPath, err)
	}
	fmt.Printf("Service unit written to %s\n", unitPath)

	// Reload an already-installed unit; failures here just mean it was not loaded.
	runAll(m.unload, unitPath, false)
	if err := runAll(m.load, unitPath, true); err != nil {
		return err
	}
	fmt.Printf("Service %s loaded\n", serviceLabel)
	return nil
}

// UninstallService unloads and removes the unit written by InstallService.
func UninstallService() error {
	m, err := managerFor(runtime.GOOS)
	if err != nil {
		return err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	unitPath := m.path(homeDir)
	runAll(m.unload, unitPath, false)
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", unitPath, err)
	}
	fmt.Printf("Service %s uninstalled\n", serviceLabel)
	return nil
}

func runAll(cmds [][]string, unitPath string, verbose bool) error {
	for _, argv := range cmds {
		args := make([]string, len(argv)-1)
		for i, a := range argv[1:] {
			if a == "{{path}}" {
				a = unitPath
			}
			args[i] = a
		}
		cmd := exec.Command(argv[0], args...)
		if verbose {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s %v: %w", argv[0], args, err)
		}
	}
	return nil
}
