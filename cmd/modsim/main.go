package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"modsim/internal/config"
	"modsim/internal/protocol"
	"modsim/internal/recorder"
	"modsim/internal/sim"
	"modsim/internal/store"
	"modsim/internal/transport"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitBindError   = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to TOML configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("modsim: %v", err)
		return exitConfigError
	}

	st := store.New()
	points, err := sim.Build(st, &cfg.Device, cfg.Global.UpdateMs)
	if err != nil {
		log.Printf("modsim: %v", err)
		return exitConfigError
	}

	var rec *recorder.Recorder
	var sink sim.UpdateSink
	if cfg.Recorder != nil {
		rec, err = recorder.Open(cfg.Recorder.Path)
		if err != nil {
			log.Printf("modsim: %v", err)
			return exitConfigError
		}
		sink = rec
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var received os.Signal
	go func() {
		received = <-sigCh
		log.Printf("modsim: received %s, shutting down", received)
		cancel()
	}()

	dispatcher := protocol.NewDispatcher(st)

	var tcpSrv *transport.TCPServer
	if cfg.TCP != nil {
		tcpSrv = transport.NewTCPServer(dispatcher)
		if err := tcpSrv.Listen(cfg.TCP.Bind); err != nil {
			log.Printf("modsim: tcp bind %s: %v", cfg.TCP.Bind, err)
			return exitBindError
		}
		log.Printf("modsim: tcp listening on %s, unit %d", tcpSrv.Addr(), cfg.Device.UnitID)
	}

	var wg sync.WaitGroup
	if cfg.RTU != nil {
		device := cfg.RTU.Device
		if cfg.RTU.Mode == config.RTUModePseudoPty {
			if _, err := transport.StartPtyPair(ctx, cfg.RTU.PtyLink, cfg.RTU.PtyPeer); err != nil {
				log.Printf("modsim: %v", err)
				return exitBindError
			}
			device = cfg.RTU.PtyLink
			log.Printf("modsim: pty pair ready, serving %s, client side %s", cfg.RTU.PtyLink, cfg.RTU.PtyPeer)
		}
		port, err := transport.OpenSerial(cfg.RTU, device)
		if err != nil {
			log.Printf("modsim: open %s: %v", device, err)
			return exitBindError
		}
		log.Printf("modsim: rtu serving on %s, unit %d, %d baud", device, cfg.Device.UnitID, cfg.RTU.BaudRate)
		rtuSrv := transport.NewRTUServer(dispatcher, cfg.Device.UnitID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rtuSrv.Serve(port)
			select {
			case <-ctx.Done():
			default:
				log.Printf("modsim: rtu stream ended: %v", err)
				cancel()
			}
		}()
		go func() {
			<-ctx.Done()
			port.Close()
		}()
	}

	scheduler := sim.New(st, points, sim.Options{
		LogUpdates: cfg.Logging.LogValueUpdates,
		Sink:       sink,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	log.Printf("modsim: %d evolving point(s)", len(points))

	<-ctx.Done()
	if tcpSrv != nil {
		tcpSrv.Close()
	}
	wg.Wait()
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Printf("modsim: close recorder: %v", err)
		}
	}
	if received == syscall.SIGINT {
		return exitInterrupted
	}
	return exitOK
}
