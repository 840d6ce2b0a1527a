package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Pin is a GPIO line the boot script parks before the controller starts.
type Pin struct {
	Label  string
	Number int
	High   bool
}

// Service describes the controller unit.
type Service struct {
	User       string
	WorkDir    string
	ExecStart  string
	ConfigFile string
}

// BootScript renders a script that drives each pin to its resting level.
func BootScript(pins []Pin) string {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# zone heater GPIO configuration at boot", "")

	for _, p := range pins {
		drive := "dl"
		if p.High {
			drive = "dh"
		}
		lines = append(lines, fmt.Sprintf("# %s", p.Label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", p.Number, drive))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n"
}

func WriteBootScript(path string, pins []Pin) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(BootScript(pins)), 0755)
}

func BootUnit(scriptPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Park zone heater GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)
}

func InstallBootService(unitPath, scriptPath string) error {
	return os.WriteFile(unitPath, []byte(BootUnit(scriptPath)), 0644)
}

// ControllerUnit renders the main service. It starts after the boot unit and is
// restarted on failure.
func ControllerUnit(bootUnitPath string, svc Service) string {
	bootUnit := filepath.Base(bootUnitPath)

	execStart := svc.ExecStart
	if svc.ConfigFile != "" {
		execStart += " -config-file " + svc.ConfigFile
	}

	return fmt.Sprintf(`[Unit]
Description=Zone heater controller
After=%s network-online.target
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnit, bootUnit, svc.User, svc.WorkDir, execStart)
}

func InstallControllerService(unitPath, bootUnitPath string, svc Service) error {
	if svc.ExecStart == "" {
		return fmt.Errorf("controller service needs an ExecStart command")
	}
	return os.WriteFile(unitPath, []byte(ControllerUnit(bootUnitPath, svc)), 0644)
}

func RunBootScript(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
