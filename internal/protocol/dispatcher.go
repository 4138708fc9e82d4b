package protocol

import (
	"errors"

	"modsim/internal/store"
)

// Dispatcher maps request PDUs to store operations. It is stateless per
// request; the store carries all state.
type Dispatcher struct {
	store *store.Store
}

func NewDispatcher(st *store.Store) *Dispatcher {
	return &Dispatcher{store: st}
}

// Handle consumes a request PDU and always produces a response PDU, normal
// or exception. Validation runs in spec order: function code, then
// quantity/value ranges, then address existence, then execution.
func (d *Dispatcher) Handle(pdu []byte) []byte {
	if len(pdu) == 0 {
		return ExceptionPDU(0, ExceptionIllegalFunction)
	}
	function := pdu[0]
	switch function {
	case FuncReadCoils, FuncReadDiscreteInputs,
		FuncReadHoldingRegisters, FuncReadInputRegisters,
		FuncWriteSingleCoil, FuncWriteSingleRegister,
		FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
	default:
		return ExceptionPDU(function, ExceptionIllegalFunction)
	}

	req, err := DecodeRequest(pdu)
	if err != nil {
		return ExceptionPDU(function, ExceptionIllegalDataValue)
	}

	switch req.Function {
	case FuncReadCoils:
		return d.readBits(req, store.Coils)
	case FuncReadDiscreteInputs:
		return d.readBits(req, store.DiscreteInputs)
	case FuncReadHoldingRegisters:
		return d.readWords(req, store.HoldingRegisters)
	case FuncReadInputRegisters:
		return d.readWords(req, store.InputRegisters)
	case FuncWriteSingleCoil:
		return d.writeSingleCoil(req)
	case FuncWriteSingleRegister:
		return d.writeSingleRegister(req)
	case FuncWriteMultipleCoils:
		return d.writeMultipleCoils(req)
	default:
		return d.writeMultipleRegisters(req)
	}
}

func (d *Dispatcher) readBits(req *Request, kind store.Kind) []byte {
	if req.Quantity < 1 || req.Quantity > MaxReadBits {
		return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
	}
	bits, err := d.store.ReadBits(kind, req.Address, req.Quantity)
	if err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Bits: bits}).Encode()
	return resp
}

func (d *Dispatcher) readWords(req *Request, kind store.Kind) []byte {
	if req.Quantity < 1 || req.Quantity > MaxReadWords {
		return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
	}
	words, err := d.store.ReadWords(kind, req.Address, req.Quantity)
	if err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Words: words}).Encode()
	return resp
}

func (d *Dispatcher) writeSingleCoil(req *Request) []byte {
	if req.Value != 0x0000 && req.Value != 0xFF00 {
		return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
	}
	if err := d.store.WriteBit(req.Address, req.Value == 0xFF00); err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Address: req.Address, Value: req.Value}).Encode()
	return resp
}

func (d *Dispatcher) writeSingleRegister(req *Request) []byte {
	if err := d.store.WriteWord(req.Address, req.Value); err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Address: req.Address, Value: req.Value}).Encode()
	return resp
}

func (d *Dispatcher) writeMultipleCoils(req *Request) []byte {
	if req.Quantity < 1 || req.Quantity > MaxWriteBits {
		return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
	}
	if err := d.store.WriteBits(req.Address, req.Bits); err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Address: req.Address, Quantity: req.Quantity}).Encode()
	return resp
}

func (d *Dispatcher) writeMultipleRegisters(req *Request) []byte {
	if req.Quantity < 1 || req.Quantity > MaxWriteWords {
		return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
	}
	if err := d.store.WriteWords(req.Address, req.Words); err != nil {
		return ExceptionPDU(req.Function, storeException(err))
	}
	resp, _ := (&Response{Function: req.Function, Address: req.Address, Quantity: req.Quantity}).Encode()
	return resp
}

func storeException(err error) byte {
	if errors.Is(err, store.ErrNoSuchAddress) {
		return ExceptionIllegalDataAddress
	}
	return ExceptionServerDeviceFailure
}
