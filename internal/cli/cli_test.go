package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/config"
	"github.com/sweeney/pedalcam/internal/pedal"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "pedalcam", cmd.Use)
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
		assert.NotNil(t, c.RunE, "%s should have RunE", c.Use)
	}
	for _, want := range []string{"run", "auth", "devices", "check-camera"} {
		assert.True(t, names[want], "missing %q command", want)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestRunFlagsMatchConfigKeys(t *testing.T) {
	cmd := BuildCLI()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"http", "broker", "heartbeat", "led-pin", "timelapse", "debounce", "check-interval"} {
		assert.NotNil(t, run.Flags().Lookup(name), "run should define --%s", name)
	}
}

func TestRunRequiresOAuthCredentials(t *testing.T) {
	t.Setenv("PEDALCAM_OAUTH_CLIENT_ID", "")
	t.Setenv("PEDALCAM_OAUTH_CLIENT_SECRET", "")

	cmd := BuildCLI()
	cmd.SetArgs([]string{"run"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth.client_id")
}

func TestAuthRequiresOAuthCredentials(t *testing.T) {
	t.Setenv("PEDALCAM_OAUTH_CLIENT_ID", "")

	cmd := BuildCLI()
	cmd.SetArgs([]string{"auth"})

	assert.Error(t, cmd.Execute())
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Setenv("PEDALCAM_PEDAL_BURST_COUNT", "0")

	cmd := BuildCLI()
	cmd.SetArgs([]string{"run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "burst_count")
}

func TestDevicesCommand(t *testing.T) {
	list := func() ([]pedal.DeviceInfo, error) {
		return []pedal.DeviceInfo{
			{VendorID: 0x046d, ProductID: 0xc52b, Manufacturer: "Logitech", Product: "USB Receiver", Path: "/dev/hidraw0"},
			{VendorID: pedal.DefaultVendorID, ProductID: pedal.DefaultProductID, Manufacturer: "PCsensor", Product: "FootSwitch", Path: "/dev/hidraw1"},
		}, nil
	}
	cmd := buildDevicesCommand(list)
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "046d")
	assert.NotContains(t, lines[1], "<- pedal")
	assert.Contains(t, lines[2], "04b4")
	assert.Contains(t, lines[2], "<- pedal")
}

func TestDevicesCommandEmpty(t *testing.T) {
	cmd := buildDevicesCommand(func() ([]pedal.DeviceInfo, error) { return nil, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Equal(t, "No HID devices found\n", out.String())
}

func TestDevicesCommandError(t *testing.T) {
	cmd := buildDevicesCommand(func() ([]pedal.DeviceInfo, error) { return nil, errors.New("hidapi unavailable") })
	assert.Error(t, cmd.RunE(cmd, nil))
}

func TestCameraConfig(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Camera.Sudo = true

	cc := cameraConfig(cfg, camera.DefaultSignatures())
	assert.Equal(t, "Canon EOS 700D", cc.Model)
	assert.Equal(t, []string{"gphoto2"}, cc.Command)
	assert.True(t, cc.Sudo)
	assert.Equal(t, cfg.Camera.CaptureTimeout, cc.CaptureTimeout)
	assert.NotEmpty(t, cc.Signatures.Disconnect)
}
