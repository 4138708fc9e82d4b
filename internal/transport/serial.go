package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/goburrow/serial"

	"modsim/internal/config"
)

// OpenSerial opens the configured serial device for RTU service.
func OpenSerial(cfg *config.RTUConfig, device string) (io.ReadWriteCloser, error) {
	parity, err := serialParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	return serial.Open(&serial.Config{
		Address:  device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   parity,
		Timeout:  10 * time.Second,
	})
}

func serialParity(p string) (string, error) {
	switch p {
	case "none":
		return "N", nil
	case "even":
		return "E", nil
	case "odd":
		return "O", nil
	default:
		return "", fmt.Errorf("unknown parity %q", p)
	}
}

// StartPtyPair spawns a socat-backed pty pair: the server opens link, a
// client tool opens peer. The process dies with ctx. socat needs a moment
// to create the symlinks, hence the settle delay.
func StartPtyPair(ctx context.Context, link, peer string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, "socat",
		"-d", "-d",
		"pty,raw,echo=0,link="+link,
		"pty,raw,echo=0,link="+peer,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start socat: %w", err)
	}
	time.Sleep(400 * time.Millisecond)
	return cmd, nil
}
