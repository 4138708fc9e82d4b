package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"time"

	mb "github.com/goburrow/modbus"

	"modsim/internal/config"
	"modsim/internal/store"
)

// Poll client for a running simulator: reads every configured point over
// TCP or RTU and prints the values. Useful for eyeballing dynamics without
// a full SCADA stack.
func main() {
	var cfgPath string
	var once bool
	flag.StringVar(&cfgPath, "config", "config.toml", "path to TOML configuration")
	flag.BoolVar(&once, "once", false, "poll a single pass and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client, closeFn, err := connect(cfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer closeFn()

	interval := time.Duration(cfg.Global.UpdateMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pollAll(client, &cfg.Device)
		if once {
			return
		}
		<-ticker.C
	}
}

// connect prefers TCP when both transports are configured. In pseudo-pty
// mode the client opens the peer end of the pair.
func connect(cfg *config.Config) (mb.Client, func(), error) {
	if cfg.TCP != nil {
		handler := mb.NewTCPClientHandler(cfg.TCP.Bind)
		handler.Timeout = 5 * time.Second
		handler.SlaveId = cfg.Device.UnitID
		if err := handler.Connect(); err != nil {
			return nil, nil, err
		}
		return mb.NewClient(handler), func() { handler.Close() }, nil
	}

	device := cfg.RTU.Device
	if cfg.RTU.Mode == config.RTUModePseudoPty {
		device = cfg.RTU.PtyPeer
	}
	handler := mb.NewRTUClientHandler(device)
	handler.BaudRate = cfg.RTU.BaudRate
	handler.DataBits = cfg.RTU.DataBits
	handler.StopBits = cfg.RTU.StopBits
	handler.Parity = rtuParity(cfg.RTU.Parity)
	handler.Timeout = 5 * time.Second
	handler.SlaveId = cfg.Device.UnitID
	if err := handler.Connect(); err != nil {
		return nil, nil, err
	}
	return mb.NewClient(handler), func() { handler.Close() }, nil
}

func rtuParity(p string) string {
	switch p {
	case "even":
		return "E"
	case "odd":
		return "O"
	default:
		return "N"
	}
}

func pollAll(client mb.Client, dev *config.DeviceConfig) {
	for kind, points := range dev.Tables() {
		for i := range points {
			addr := points[i].Address
			if kind.Bits() {
				value, err := readBit(client, kind, addr)
				if err != nil {
					log.Printf("read %s %d: %v", kind, addr, err)
					continue
				}
				fmt.Printf("%s@%d = %t\n", kind, addr, value)
			} else {
				value, err := readWord(client, kind, addr)
				if err != nil {
					log.Printf("read %s %d: %v", kind, addr, err)
					continue
				}
				fmt.Printf("%s@%d = %d\n", kind, addr, value)
			}
		}
	}
}

func readBit(client mb.Client, kind store.Kind, addr uint16) (bool, error) {
	var data []byte
	var err error
	if kind == store.Coils {
		data, err = client.ReadCoils(addr, 1)
	} else {
		data, err = client.ReadDiscreteInputs(addr, 1)
	}
	if err != nil {
		return false, err
	}
	return len(data) > 0 && data[0]&0x01 == 0x01, nil
}

func readWord(client mb.Client, kind store.Kind, addr uint16) (uint16, error) {
	var data []byte
	var err error
	if kind == store.HoldingRegisters {
		data, err = client.ReadHoldingRegisters(addr, 1)
	} else {
		data, err = client.ReadInputRegisters(addr, 1)
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}
