package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"modsim/internal/protocol"
	"modsim/internal/store"
)

func tcpFixture(t *testing.T) string {
	t.Helper()
	st := store.New()
	if err := st.AddBit(store.Coils, 3, true); err != nil {
		t.Fatalf("add coil: %v", err)
	}
	for addr := uint16(10); addr < 14; addr++ {
		if err := st.AddWord(store.HoldingRegisters, addr, addr); err != nil {
			t.Fatalf("add holding: %v", err)
		}
	}
	if err := st.AddWord(store.InputRegisters, 0, 0xCAFE); err != nil {
		t.Fatalf("add input: %v", err)
	}
	srv := NewTCPServer(protocol.NewDispatcher(st))
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv.Addr().String()
}

func tcpClient(t *testing.T, addr string) modbus.Client {
	t.Helper()
	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = 5 * time.Second
	if err := handler.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { handler.Close() })
	return modbus.NewClient(handler)
}

func TestTCPEndToEnd(t *testing.T) {
	t.Parallel()
	client := tcpClient(t, tcpFixture(t))

	bits, err := client.ReadCoils(3, 1)
	if err != nil {
		t.Fatalf("read coils: %v", err)
	}
	if bits[0]&0x01 != 0x01 {
		t.Fatalf("coil 3 = % X, want set", bits)
	}

	if _, err := client.WriteSingleRegister(10, 0x1234); err != nil {
		t.Fatalf("write register: %v", err)
	}
	regs, err := client.ReadHoldingRegisters(10, 1)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	if binary.BigEndian.Uint16(regs) != 0x1234 {
		t.Fatalf("holding 10 = % X, want 12 34", regs)
	}

	input, err := client.ReadInputRegisters(0, 1)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if binary.BigEndian.Uint16(input) != 0xCAFE {
		t.Fatalf("input 0 = % X, want CA FE", input)
	}

	if _, err := client.WriteMultipleRegisters(10, 4, []byte{0, 1, 0, 2, 0, 3, 0, 4}); err != nil {
		t.Fatalf("write multiple: %v", err)
	}
	regs, err = client.ReadHoldingRegisters(10, 4)
	if err != nil {
		t.Fatalf("read back multiple: %v", err)
	}
	if !bytes.Equal(regs, []byte{0, 1, 0, 2, 0, 3, 0, 4}) {
		t.Fatalf("read back % X", regs)
	}
}

func TestTCPExceptionSurfacesToClient(t *testing.T) {
	t.Parallel()
	client := tcpClient(t, tcpFixture(t))
	_, err := client.ReadHoldingRegisters(500, 1)
	if err == nil {
		t.Fatal("read of absent address succeeded")
	}
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("error %T, want *modbus.ModbusError", err)
	}
	if mbErr.ExceptionCode != 0x02 {
		t.Fatalf("exception code %#02x, want 0x02", mbErr.ExceptionCode)
	}
}

// Two requests written back to back must come back in order with their
// transaction and unit identifiers echoed.
func TestTCPPipelinedRequests(t *testing.T) {
	t.Parallel()
	addr := tcpFixture(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := func(txn uint16, unit byte, pdu []byte) []byte {
		out := make([]byte, 7, 7+len(pdu))
		binary.BigEndian.PutUint16(out[0:2], txn)
		binary.BigEndian.PutUint16(out[4:6], uint16(len(pdu)+1))
		out[6] = unit
		return append(out, pdu...)
	}
	var req []byte
	req = append(req, frame(7, 1, []byte{0x03, 0x00, 0x0A, 0x00, 0x01})...)
	req = append(req, frame(8, 9, []byte{0x01, 0x00, 0x03, 0x00, 0x01})...)
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	readFrame := func() (uint16, byte, []byte) {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			t.Fatalf("read header: %v", err)
		}
		pdu := make([]byte, binary.BigEndian.Uint16(header[4:6])-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			t.Fatalf("read pdu: %v", err)
		}
		return binary.BigEndian.Uint16(header[0:2]), header[6], pdu
	}

	txn, unit, pdu := readFrame()
	if txn != 7 || unit != 1 {
		t.Fatalf("first response txn=%d unit=%d", txn, unit)
	}
	if !bytes.Equal(pdu, []byte{0x03, 0x02, 0x00, 0x0A}) {
		t.Fatalf("first response pdu % X", pdu)
	}
	txn, unit, pdu = readFrame()
	if txn != 8 || unit != 9 {
		t.Fatalf("second response txn=%d unit=%d", txn, unit)
	}
	if !bytes.Equal(pdu, []byte{0x01, 0x01, 0x01}) {
		t.Fatalf("second response pdu % X", pdu)
	}
}
