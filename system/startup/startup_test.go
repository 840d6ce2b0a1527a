package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootScript(t *testing.T) {
	script := BootScript([]Pin{
		{Label: "heater.control", Number: 27},
		{Label: "status.led", Number: 5, High: true},
	})

	assert.Contains(t, script, "#!/bin/bash\n")
	assert.Contains(t, script, "# heater.control\npinctrl set 27 op pn dl\n")
	assert.Contains(t, script, "# status.led\npinctrl set 5 op pn dh\n")
}

func TestWriteBootScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot", "zone-heater-gpio.sh")
	require.NoError(t, WriteBootScript(path, []Pin{{Label: "heater.control", Number: 27}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestControllerUnit(t *testing.T) {
	unit := ControllerUnit("/etc/systemd/system/zone-heater-gpio.service", Service{
		User:       "pi",
		WorkDir:    "/opt/zone-heater",
		ExecStart:  "/opt/zone-heater/bin/zone-heater",
		ConfigFile: "/etc/zone-heater/config.json",
	})

	assert.Contains(t, unit, "Requires=zone-heater-gpio.service\n")
	assert.Contains(t, unit, "After=zone-heater-gpio.service network-online.target\n")
	assert.Contains(t, unit, "ExecStart=/opt/zone-heater/bin/zone-heater -config-file /etc/zone-heater/config.json\n")
	assert.Contains(t, unit, "User=pi\n")
}

func TestInstallControllerService(t *testing.T) {
	dir := t.TempDir()
	unitPath := filepath.Join(dir, "zone-heater.service")

	assert.Error(t, InstallControllerService(unitPath, "gpio.service", Service{}))

	require.NoError(t, InstallControllerService(unitPath, "gpio.service", Service{ExecStart: "/usr/local/bin/zone-heater"}))
	b, err := os.ReadFile(unitPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ExecStart=/usr/local/bin/zone-heater\n")
}

func TestInstallBootService(t *testing.T) {
	unitPath := filepath.Join(t.TempDir(), "zone-heater-gpio.service")
	require.NoError(t, InstallBootService(unitPath, "/opt/zone-heater/boot.sh"))

	b, err := os.ReadFile(unitPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ExecStart=/opt/zone-heater/boot.sh\n")
	assert.Contains(t, string(b), "Type=oneshot\n")
}
