package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `
[logging]
log_value_updates = true

[global]
update_ms = 100

[tcp]
bind = "127.0.0.1:15020"

[rtu]
mode = "pseudo-pty"
pty_link = "/tmp/modsim0"
pty_peer = "/tmp/modsim1"

[recorder]
path = "history.sqlite"

[device]
unit_id = 17

[[device.coils]]
address = 0
initial = 1

[[device.discrete_inputs]]
address = 3
initial = 0
dynamics = { kind = "step", low = 0.0, high = 1.0, period_ms = 2000 }

[[device.holding_registers]]
address = 10
initial = 100.0
update_ms = 50
dynamics = { kind = "sine", amplitude = 50.0, offset = 100.0, period_ms = 1000 }

[[device.input_registers]]
address = 20
initial = 0.0
dynamics = { kind = "script", expr = "100 + 20*sin(t)", min = 0.0, max = 200.0 }
`

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Logging.LogValueUpdates {
		t.Fatal("log_value_updates not decoded")
	}
	if cfg.Global.UpdateMs != 100 {
		t.Fatalf("update_ms = %d, want 100", cfg.Global.UpdateMs)
	}
	if cfg.TCP == nil || cfg.TCP.Bind != "127.0.0.1:15020" {
		t.Fatalf("tcp = %+v", cfg.TCP)
	}
	if cfg.RTU == nil || cfg.RTU.Mode != RTUModePseudoPty {
		t.Fatalf("rtu = %+v", cfg.RTU)
	}
	if cfg.Recorder == nil || cfg.Recorder.Path != "history.sqlite" {
		t.Fatalf("recorder = %+v", cfg.Recorder)
	}
	if cfg.Device.UnitID != 17 {
		t.Fatalf("unit_id = %d, want 17", cfg.Device.UnitID)
	}
	hr := cfg.Device.HoldingRegisters
	if len(hr) != 1 || hr[0].Address != 10 || hr[0].Initial != 100.0 {
		t.Fatalf("holding_registers = %+v", hr)
	}
	if hr[0].UpdateMs == nil || *hr[0].UpdateMs != 50 {
		t.Fatalf("per-point update_ms = %v", hr[0].UpdateMs)
	}
	if hr[0].Dynamics == nil || hr[0].Dynamics.Kind != "sine" || hr[0].Dynamics.Amplitude != 50.0 {
		t.Fatalf("dynamics = %+v", hr[0].Dynamics)
	}
	ir := cfg.Device.InputRegisters
	if ir[0].Dynamics.Expr != "100 + 20*sin(t)" {
		t.Fatalf("script expr = %q", ir[0].Dynamics.Expr)
	}
	if ir[0].Dynamics.Min == nil || *ir[0].Dynamics.Min != 0.0 {
		t.Fatalf("script min = %v", ir[0].Dynamics.Min)
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, `
[tcp]

[rtu]
device = "/dev/ttyUSB0"

[[device.coils]]
address = 0
initial = 0
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.UpdateMs != 500 {
		t.Fatalf("default update_ms = %d, want 500", cfg.Global.UpdateMs)
	}
	if cfg.TCP.Bind != "0.0.0.0:5020" {
		t.Fatalf("default bind = %q", cfg.TCP.Bind)
	}
	if cfg.Device.UnitID != 1 {
		t.Fatalf("default unit_id = %d", cfg.Device.UnitID)
	}
	r := cfg.RTU
	if r.Mode != RTUModeSerial || r.BaudRate != 9600 || r.Parity != "none" || r.DataBits != 8 || r.StopBits != 1 {
		t.Fatalf("rtu defaults = %+v", r)
	}
}

func TestValidationFailures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no transport", `
[[device.coils]]
address = 0
initial = 0
`, "no transport"},
		{"duplicate address", `
[tcp]
[[device.holding_registers]]
address = 5
initial = 0
[[device.holding_registers]]
address = 5
initial = 1
`, "duplicate address"},
		{"unknown dynamics kind", `
[tcp]
[[device.coils]]
address = 0
initial = 0
dynamics = { kind = "wobble" }
`, "unknown dynamics kind"},
		{"bad script", `
[tcp]
[[device.holding_registers]]
address = 0
initial = 0
dynamics = { kind = "script", expr = "1 +" }
`, "script"},
		{"unit id out of range", `
[tcp]
[device]
unit_id = 248
`, "unit_id"},
		{"zero update_ms", `
[tcp]
[[device.holding_registers]]
address = 0
initial = 0
update_ms = 0
`, "update_ms"},
		{"serial without device", `
[rtu]
mode = "serial"
`, "rtu.device"},
		{"pseudo-pty without paths", `
[rtu]
mode = "pseudo-pty"
`, "pty_link"},
		{"bad parity", `
[rtu]
device = "/dev/ttyUSB0"
parity = "mark"
`, "parity"},
		{"bad stop bits", `
[rtu]
device = "/dev/ttyUSB0"
stop_bits = 3
`, "stop_bits"},
		{"bad data bits", `
[rtu]
device = "/dev/ttyUSB0"
data_bits = 9
`, "data_bits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestMissingFileIsAnError(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestNilDynamicsIsStatic(t *testing.T) {
	t.Parallel()
	var dc *DynamicsConfig
	spec := dc.Spec()
	if spec.Evolving() {
		t.Fatal("nil dynamics must be static")
	}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile static: %v", err)
	}
}
