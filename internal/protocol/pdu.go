package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request is the decoded form of a request PDU. Which fields are populated
// depends on the function code: reads carry Address+Quantity, single writes
// Address+Value, multi-writes Address+Bits or Address+Words.
type Request struct {
	Function byte
	Address  uint16
	Quantity uint16
	Value    uint16
	Bits     []bool
	Words    []uint16
}

// Encode serializes the request into a PDU.
func (r *Request) Encode() ([]byte, error) {
	switch r.Function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		pdu := make([]byte, 5)
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], r.Quantity)
		return pdu, nil
	case FuncWriteSingleCoil, FuncWriteSingleRegister:
		pdu := make([]byte, 5)
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], r.Value)
		return pdu, nil
	case FuncWriteMultipleCoils:
		packed := PackBits(r.Bits)
		pdu := make([]byte, 6, 6+len(packed))
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], uint16(len(r.Bits)))
		pdu[5] = byte(len(packed))
		return append(pdu, packed...), nil
	case FuncWriteMultipleRegisters:
		pdu := make([]byte, 6, 6+2*len(r.Words))
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], uint16(len(r.Words)))
		pdu[5] = byte(2 * len(r.Words))
		for _, w := range r.Words {
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], w)
			pdu = append(pdu, buf[:]...)
		}
		return pdu, nil
	default:
		return nil, fmt.Errorf("%w: %#02x", errUnknownFunc, r.Function)
	}
}

// DecodeRequest parses a request PDU. It checks framing only (lengths and
// byte counts); semantic validation such as quantity ranges stays with the
// dispatcher.
func DecodeRequest(pdu []byte) (*Request, error) {
	if len(pdu) < 1 {
		return nil, errShortPDU
	}
	req := &Request{Function: pdu[0]}
	switch req.Function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		if len(pdu) != 5 {
			return nil, errShortPDU
		}
		req.Address = binary.BigEndian.Uint16(pdu[1:3])
		req.Quantity = binary.BigEndian.Uint16(pdu[3:5])
	case FuncWriteSingleCoil, FuncWriteSingleRegister:
		if len(pdu) != 5 {
			return nil, errShortPDU
		}
		req.Address = binary.BigEndian.Uint16(pdu[1:3])
		req.Value = binary.BigEndian.Uint16(pdu[3:5])
	case FuncWriteMultipleCoils:
		if len(pdu) < 6 {
			return nil, errShortPDU
		}
		req.Address = binary.BigEndian.Uint16(pdu[1:3])
		req.Quantity = binary.BigEndian.Uint16(pdu[3:5])
		byteCount := int(pdu[5])
		if len(pdu) != 6+byteCount {
			return nil, errShortPDU
		}
		if byteCount != (int(req.Quantity)+7)/8 {
			return nil, errBadByteCount
		}
		req.Bits = UnpackBits(pdu[6:], int(req.Quantity))
	case FuncWriteMultipleRegisters:
		if len(pdu) < 6 {
			return nil, errShortPDU
		}
		req.Address = binary.BigEndian.Uint16(pdu[1:3])
		req.Quantity = binary.BigEndian.Uint16(pdu[3:5])
		byteCount := int(pdu[5])
		if len(pdu) != 6+byteCount {
			return nil, errShortPDU
		}
		if byteCount != 2*int(req.Quantity) {
			return nil, errBadByteCount
		}
		req.Words = make([]uint16, req.Quantity)
		for i := range req.Words {
			req.Words[i] = binary.BigEndian.Uint16(pdu[6+2*i:])
		}
	default:
		return nil, fmt.Errorf("%w: %#02x", errUnknownFunc, req.Function)
	}
	return req, nil
}

// Response is the decoded form of a normal (non-exception) response PDU.
// Bit-read responses round to whole bytes on the wire, so decoded Bits may
// carry up to seven trailing padding bits.
type Response struct {
	Function byte
	Address  uint16
	Quantity uint16
	Value    uint16
	Bits     []bool
	Words    []uint16
}

// Encode serializes the response into a PDU.
func (r *Response) Encode() ([]byte, error) {
	switch r.Function {
	case FuncReadCoils, FuncReadDiscreteInputs:
		packed := PackBits(r.Bits)
		pdu := make([]byte, 2, 2+len(packed))
		pdu[0] = r.Function
		pdu[1] = byte(len(packed))
		return append(pdu, packed...), nil
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		pdu := make([]byte, 2, 2+2*len(r.Words))
		pdu[0] = r.Function
		pdu[1] = byte(2 * len(r.Words))
		for _, w := range r.Words {
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], w)
			pdu = append(pdu, buf[:]...)
		}
		return pdu, nil
	case FuncWriteSingleCoil, FuncWriteSingleRegister:
		pdu := make([]byte, 5)
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], r.Value)
		return pdu, nil
	case FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		pdu := make([]byte, 5)
		pdu[0] = r.Function
		binary.BigEndian.PutUint16(pdu[1:3], r.Address)
		binary.BigEndian.PutUint16(pdu[3:5], r.Quantity)
		return pdu, nil
	default:
		return nil, fmt.Errorf("%w: %#02x", errUnknownFunc, r.Function)
	}
}

// DecodeResponse parses a normal response PDU. Exception responses are
// rejected; use DecodeException for those.
func DecodeResponse(pdu []byte) (*Response, error) {
	if len(pdu) < 2 {
		return nil, errShortPDU
	}
	if pdu[0]&0x80 != 0 {
		return nil, errNotAResponse
	}
	resp := &Response{Function: pdu[0]}
	switch resp.Function {
	case FuncReadCoils, FuncReadDiscreteInputs:
		byteCount := int(pdu[1])
		if len(pdu) != 2+byteCount {
			return nil, errShortPDU
		}
		resp.Bits = UnpackBits(pdu[2:], byteCount*8)
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		byteCount := int(pdu[1])
		if len(pdu) != 2+byteCount || byteCount%2 != 0 {
			return nil, errShortPDU
		}
		resp.Words = make([]uint16, byteCount/2)
		for i := range resp.Words {
			resp.Words[i] = binary.BigEndian.Uint16(pdu[2+2*i:])
		}
	case FuncWriteSingleCoil, FuncWriteSingleRegister:
		if len(pdu) != 5 {
			return nil, errShortPDU
		}
		resp.Address = binary.BigEndian.Uint16(pdu[1:3])
		resp.Value = binary.BigEndian.Uint16(pdu[3:5])
	case FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		if len(pdu) != 5 {
			return nil, errShortPDU
		}
		resp.Address = binary.BigEndian.Uint16(pdu[1:3])
		resp.Quantity = binary.BigEndian.Uint16(pdu[3:5])
	default:
		return nil, fmt.Errorf("%w: %#02x", errUnknownFunc, resp.Function)
	}
	return resp, nil
}
