package transport

import (
	"encoding/binary"
	"io"
	"log"
	"net"
	"sync"

	"modsim/internal/protocol"
)

const mbapHeaderLen = 7

// TCPServer serves Modbus TCP (MBAP framing). Each connection gets its own
// goroutine; requests on one connection are answered in order, so clients
// may pipeline.
type TCPServer struct {
	dispatcher *protocol.Dispatcher
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	closeOnce  sync.Once
}

func NewTCPServer(d *protocol.Dispatcher) *TCPServer {
	return &TCPServer{dispatcher: d, quit: make(chan struct{})}
}

// Listen binds the address and starts accepting connections. A bind failure
// is returned to the caller; accept errors after that only end the loop on
// shutdown.
func (s *TCPServer) Listen(address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, valid after Listen.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads MBAP frames until the peer hangs up or sends a
// malformed header. The transaction and unit identifiers are echoed back
// unchanged; every unit id is served.
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	header := make([]byte, mbapHeaderLen)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		if proto := binary.BigEndian.Uint16(header[2:4]); proto != 0 {
			log.Printf("tcp: %s: dropping frame with protocol id %d", conn.RemoteAddr(), proto)
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		if length < 2 {
			return
		}
		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		response := s.dispatcher.Handle(pdu)
		binary.BigEndian.PutUint16(header[4:6], uint16(len(response)+1))
		if _, err := conn.Write(header); err != nil {
			return
		}
		if _, err := conn.Write(response); err != nil {
			return
		}
	}
}

// Close stops the listener and waits for every connection goroutine.
func (s *TCPServer) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}
