package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"modsim/internal/dynamics"
	"modsim/internal/store"
)

// Config is the root of the TOML configuration file.
type Config struct {
	Logging  LoggingConfig   `toml:"logging"`
	Global   GlobalConfig    `toml:"global"`
	TCP      *TCPConfig      `toml:"tcp"`
	RTU      *RTUConfig      `toml:"rtu"`
	Recorder *RecorderConfig `toml:"recorder"`
	Device   DeviceConfig    `toml:"device"`
}

type LoggingConfig struct {
	LogValueUpdates bool `toml:"log_value_updates"`
}

type GlobalConfig struct {
	UpdateMs int64 `toml:"update_ms"`
}

// TCPConfig enables the MBAP listener. A missing [tcp] table disables TCP.
type TCPConfig struct {
	Bind string `toml:"bind"`
}

// RTUConfig enables the serial endpoint. A missing [rtu] table disables RTU.
type RTUConfig struct {
	Mode     string `toml:"mode"` // serial | pseudo-pty
	Device   string `toml:"device"`
	BaudRate int    `toml:"baud_rate"`
	Parity   string `toml:"parity"` // none | even | odd
	DataBits int    `toml:"data_bits"`
	StopBits int    `toml:"stop_bits"`
	PtyLink  string `toml:"pty_link"`
	PtyPeer  string `toml:"pty_peer"`
}

const (
	RTUModeSerial    = "serial"
	RTUModePseudoPty = "pseudo-pty"
)

type RecorderConfig struct {
	Path string `toml:"path"`
}

type DeviceConfig struct {
	UnitID           uint8         `toml:"unit_id"`
	Coils            []PointConfig `toml:"coils"`
	DiscreteInputs   []PointConfig `toml:"discrete_inputs"`
	HoldingRegisters []PointConfig `toml:"holding_registers"`
	InputRegisters   []PointConfig `toml:"input_registers"`
}

// PointConfig declares one addressed point. UpdateMs overrides the global
// tick period for this point only.
type PointConfig struct {
	Address  uint16          `toml:"address"`
	Initial  float64         `toml:"initial"`
	UpdateMs *int64          `toml:"update_ms"`
	Dynamics *DynamicsConfig `toml:"dynamics"`
}

// DynamicsConfig is the TOML form of a dynamics spec. Which fields are
// meaningful depends on kind; Spec performs the conversion and Compile the
// validation.
type DynamicsConfig struct {
	Kind      string   `toml:"kind"`
	Min       *float64 `toml:"min"`
	Max       *float64 `toml:"max"`
	Amplitude float64  `toml:"amplitude"`
	Offset    float64  `toml:"offset"`
	From      float64  `toml:"from"`
	To        float64  `toml:"to"`
	Low       float64  `toml:"low"`
	High      float64  `toml:"high"`
	PeriodMs  int64    `toml:"period_ms"`
	Step      float64  `toml:"step"`
	Expr      string   `toml:"expr"`
}

// Spec converts the TOML form into an evaluator spec. A nil receiver maps to
// static dynamics.
func (dc *DynamicsConfig) Spec() *dynamics.Spec {
	if dc == nil {
		return &dynamics.Spec{Kind: dynamics.KindStatic}
	}
	return &dynamics.Spec{
		Kind:      dc.Kind,
		Min:       dc.Min,
		Max:       dc.Max,
		Amplitude: dc.Amplitude,
		Offset:    dc.Offset,
		From:      dc.From,
		To:        dc.To,
		Low:       dc.Low,
		High:      dc.High,
		PeriodMs:  dc.PeriodMs,
		Step:      dc.Step,
		Expr:      dc.Expr,
	}
}

// Tables pairs every point list with the store table it populates.
func (d *DeviceConfig) Tables() map[store.Kind][]PointConfig {
	return map[store.Kind][]PointConfig{
		store.Coils:            d.Coils,
		store.DiscreteInputs:   d.DiscreteInputs,
		store.HoldingRegisters: d.HoldingRegisters,
		store.InputRegisters:   d.InputRegisters,
	}
}

// Load reads, defaults, and validates a configuration file. Any returned
// error is fatal to startup.
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	// An explicit global.update_ms = 0 is rejected, not defaulted.
	if md.IsDefined("global", "update_ms") && cfg.Global.UpdateMs == 0 {
		return nil, fmt.Errorf("%s: global.update_ms must be >= 1, got 0", path)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Global.UpdateMs == 0 {
		c.Global.UpdateMs = 500
	}
	if c.TCP != nil && c.TCP.Bind == "" {
		c.TCP.Bind = "0.0.0.0:5020"
	}
	if c.RTU != nil {
		if c.RTU.Mode == "" {
			c.RTU.Mode = RTUModeSerial
		}
		if c.RTU.BaudRate == 0 {
			c.RTU.BaudRate = 9600
		}
		if c.RTU.Parity == "" {
			c.RTU.Parity = "none"
		}
		if c.RTU.DataBits == 0 {
			c.RTU.DataBits = 8
		}
		if c.RTU.StopBits == 0 {
			c.RTU.StopBits = 1
		}
	}
	if c.Device.UnitID == 0 {
		c.Device.UnitID = 1
	}
}

func (c *Config) validate() error {
	if c.Global.UpdateMs < 1 {
		return fmt.Errorf("global.update_ms must be >= 1, got %d", c.Global.UpdateMs)
	}
	if c.Device.UnitID < 1 || c.Device.UnitID > 247 {
		return fmt.Errorf("device.unit_id must be in 1..=247, got %d", c.Device.UnitID)
	}
	if c.TCP == nil && c.RTU == nil {
		return fmt.Errorf("no transport enabled: configure [tcp], [rtu], or both")
	}
	if c.RTU != nil {
		if err := c.RTU.validate(); err != nil {
			return err
		}
	}
	for kind, points := range c.Device.Tables() {
		seen := make(map[uint16]bool, len(points))
		for i := range points {
			p := &points[i]
			if seen[p.Address] {
				return fmt.Errorf("%s: duplicate address %d", kind, p.Address)
			}
			seen[p.Address] = true
			if p.UpdateMs != nil && *p.UpdateMs < 1 {
				return fmt.Errorf("%s address %d: update_ms must be >= 1, got %d", kind, p.Address, *p.UpdateMs)
			}
			if err := p.Dynamics.Spec().Compile(); err != nil {
				return fmt.Errorf("%s address %d: %w", kind, p.Address, err)
			}
		}
	}
	return nil
}

func (r *RTUConfig) validate() error {
	switch r.Mode {
	case RTUModeSerial:
		if r.Device == "" {
			return fmt.Errorf("rtu.device is required in serial mode")
		}
	case RTUModePseudoPty:
		if r.PtyLink == "" || r.PtyPeer == "" {
			return fmt.Errorf("rtu.pty_link and rtu.pty_peer are required in pseudo-pty mode")
		}
	default:
		return fmt.Errorf("rtu.mode must be %q or %q, got %q", RTUModeSerial, RTUModePseudoPty, r.Mode)
	}
	switch r.Parity {
	case "none", "even", "odd":
	default:
		return fmt.Errorf("rtu.parity must be none, even, or odd, got %q", r.Parity)
	}
	if r.BaudRate < 1 {
		return fmt.Errorf("rtu.baud_rate must be >= 1, got %d", r.BaudRate)
	}
	if r.DataBits < 5 || r.DataBits > 8 {
		return fmt.Errorf("rtu.data_bits must be in 5..=8, got %d", r.DataBits)
	}
	if r.StopBits != 1 && r.StopBits != 2 {
		return fmt.Errorf("rtu.stop_bits must be 1 or 2, got %d", r.StopBits)
	}
	return nil
}
