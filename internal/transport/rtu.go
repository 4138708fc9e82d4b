package transport

import (
	"errors"
	"io"

	"modsim/internal/protocol"
)

const broadcastUnit = 0

var errUnframeable = errors.New("cannot frame unsupported function code")

// RTUServer serves Modbus RTU frames on a byte stream: a serial port, one
// end of a pty pair, or any other io.ReadWriter.
type RTUServer struct {
	dispatcher *protocol.Dispatcher
	unitID     byte
}

func NewRTUServer(d *protocol.Dispatcher, unitID byte) *RTUServer {
	return &RTUServer{dispatcher: d, unitID: unitID}
}

// Serve reads frames until rw reports an error or a frame carries a function
// code whose length cannot be determined (errUnframeable). Frames with a bad CRC or a
// foreign unit id are consumed silently. Broadcast frames (unit 0) are
// executed but never answered.
func (s *RTUServer) Serve(rw io.ReadWriter) error {
	head := make([]byte, 2)
	for {
		if _, err := io.ReadFull(rw, head); err != nil {
			return err
		}
		unit := head[0]
		function := head[1]

		frame, err := s.readFrame(rw, unit, function)
		if err != nil {
			return err
		}
		if frame == nil {
			// unknown function code: frame length is unknowable, so the
			// stream cannot be resynchronized
			return errUnframeable
		}
		if !checkCRC(frame) {
			continue
		}
		if unit != broadcastUnit && unit != s.unitID {
			continue
		}

		pdu := frame[1 : len(frame)-2]
		response := s.dispatcher.Handle(pdu)
		if unit == broadcastUnit {
			continue
		}
		out := make([]byte, 0, 1+len(response)+2)
		out = append(out, unit)
		out = append(out, response...)
		if _, err := rw.Write(appendCRC(out)); err != nil {
			return err
		}
	}
}

// readFrame consumes the remainder of one frame, returning the complete
// frame including unit id and CRC trailer. The result is nil when the
// function code's frame length cannot be determined.
func (s *RTUServer) readFrame(r io.Reader, unit, function byte) ([]byte, error) {
	switch function {
	case protocol.FuncReadCoils, protocol.FuncReadDiscreteInputs,
		protocol.FuncReadHoldingRegisters, protocol.FuncReadInputRegisters,
		protocol.FuncWriteSingleCoil, protocol.FuncWriteSingleRegister:
		// start/address(2) + quantity/value(2) + crc(2)
		rest := make([]byte, 6)
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, err
		}
		return append([]byte{unit, function}, rest...), nil
	case protocol.FuncWriteMultipleCoils, protocol.FuncWriteMultipleRegisters:
		// start(2) + quantity(2) + bytecount(1)
		hdr := make([]byte, 5)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, err
		}
		tail := make([]byte, int(hdr[4])+2)
		if _, err := io.ReadFull(r, tail); err != nil {
			return nil, err
		}
		frame := append([]byte{unit, function}, hdr...)
		return append(frame, tail...), nil
	default:
		return nil, nil
	}
}
