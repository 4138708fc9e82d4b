package store

import (
	"errors"
	"fmt"
	"sync"
)

// Kind selects one of the four Modbus data tables.
type Kind int

const (
	Coils Kind = iota
	DiscreteInputs
	HoldingRegisters
	InputRegisters
)

func (k Kind) String() string {
	switch k {
	case Coils:
		return "coils"
	case DiscreteInputs:
		return "discrete_inputs"
	case HoldingRegisters:
		return "holding_registers"
	case InputRegisters:
		return "input_registers"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Bits reports whether the table holds single-bit values.
func (k Kind) Bits() bool { return k == Coils || k == DiscreteInputs }

// ErrNoSuchAddress signals a read or write touching an address that was
// never declared in the configuration. The dispatcher maps it to Modbus
// exception 02 (illegal data address).
var ErrNoSuchAddress = errors.New("no such address")

// Store holds the four tables. Only configured addresses exist; everything
// else is absent, not zero. Each table carries its own lock and critical
// sections cover exactly one operation, so a multi-address read observes a
// consistent snapshot and writers from ticks and connections serialize.
type Store struct {
	coils     bitTable
	discretes bitTable
	holding   wordTable
	inputs    wordTable
}

type bitTable struct {
	mu   sync.RWMutex
	vals map[uint16]bool
}

type wordTable struct {
	mu   sync.RWMutex
	vals map[uint16]uint16
}

func New() *Store {
	return &Store{
		coils:     bitTable{vals: make(map[uint16]bool)},
		discretes: bitTable{vals: make(map[uint16]bool)},
		holding:   wordTable{vals: make(map[uint16]uint16)},
		inputs:    wordTable{vals: make(map[uint16]uint16)},
	}
}

func (s *Store) bitTableFor(kind Kind) (*bitTable, error) {
	switch kind {
	case Coils:
		return &s.coils, nil
	case DiscreteInputs:
		return &s.discretes, nil
	default:
		return nil, fmt.Errorf("table %s does not hold bits", kind)
	}
}

func (s *Store) wordTableFor(kind Kind) (*wordTable, error) {
	switch kind {
	case HoldingRegisters:
		return &s.holding, nil
	case InputRegisters:
		return &s.inputs, nil
	default:
		return nil, fmt.Errorf("table %s does not hold words", kind)
	}
}

// AddBit declares a coil or discrete input at startup.
func (s *Store) AddBit(kind Kind, address uint16, initial bool) error {
	t, err := s.bitTableFor(kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.vals[address]; exists {
		return fmt.Errorf("duplicate address %d in %s", address, kind)
	}
	t.vals[address] = initial
	return nil
}

// AddWord declares a holding or input register at startup.
func (s *Store) AddWord(kind Kind, address uint16, initial uint16) error {
	t, err := s.wordTableFor(kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.vals[address]; exists {
		return fmt.Errorf("duplicate address %d in %s", address, kind)
	}
	t.vals[address] = initial
	return nil
}

// ReadBits returns count consecutive bits starting at start. All addresses
// must exist or the read fails with ErrNoSuchAddress and no data.
func (s *Store) ReadBits(kind Kind, start uint16, count uint16) ([]bool, error) {
	t, err := s.bitTableFor(kind)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]bool, count)
	for i := 0; i < int(count); i++ {
		addr := int(start) + i
		if addr > 0xFFFF {
			return nil, ErrNoSuchAddress
		}
		v, ok := t.vals[uint16(addr)]
		if !ok {
			return nil, ErrNoSuchAddress
		}
		out[i] = v
	}
	return out, nil
}

// ReadWords returns count consecutive words starting at start. All
// addresses must exist or the read fails with ErrNoSuchAddress and no data.
func (s *Store) ReadWords(kind Kind, start uint16, count uint16) ([]uint16, error) {
	t, err := s.wordTableFor(kind)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint16, count)
	for i := 0; i < int(count); i++ {
		addr := int(start) + i
		if addr > 0xFFFF {
			return nil, ErrNoSuchAddress
		}
		v, ok := t.vals[uint16(addr)]
		if !ok {
			return nil, ErrNoSuchAddress
		}
		out[i] = v
	}
	return out, nil
}

// WriteBit sets a single coil from the protocol path.
func (s *Store) WriteBit(address uint16, value bool) error {
	s.coils.mu.Lock()
	defer s.coils.mu.Unlock()
	if _, ok := s.coils.vals[address]; !ok {
		return ErrNoSuchAddress
	}
	s.coils.vals[address] = value
	return nil
}

// WriteBits sets consecutive coils from the protocol path. The write is
// all-or-nothing: when any target address is absent the store is left
// unchanged.
func (s *Store) WriteBits(start uint16, values []bool) error {
	s.coils.mu.Lock()
	defer s.coils.mu.Unlock()
	for i := range values {
		addr := int(start) + i
		if addr > 0xFFFF {
			return ErrNoSuchAddress
		}
		if _, ok := s.coils.vals[uint16(addr)]; !ok {
			return ErrNoSuchAddress
		}
	}
	for i, v := range values {
		s.coils.vals[start+uint16(i)] = v
	}
	return nil
}

// WriteWord sets a single holding register from the protocol path.
func (s *Store) WriteWord(address uint16, value uint16) error {
	s.holding.mu.Lock()
	defer s.holding.mu.Unlock()
	if _, ok := s.holding.vals[address]; !ok {
		return ErrNoSuchAddress
	}
	s.holding.vals[address] = value
	return nil
}

// WriteWords sets consecutive holding registers from the protocol path,
// all-or-nothing like WriteBits.
func (s *Store) WriteWords(start uint16, values []uint16) error {
	s.holding.mu.Lock()
	defer s.holding.mu.Unlock()
	for i := range values {
		addr := int(start) + i
		if addr > 0xFFFF {
			return ErrNoSuchAddress
		}
		if _, ok := s.holding.vals[uint16(addr)]; !ok {
			return ErrNoSuchAddress
		}
	}
	for i, v := range values {
		s.holding.vals[start+uint16(i)] = v
	}
	return nil
}

// InternalSetBit is the tick path: it may update any bit table, including
// the read-only discrete inputs.
func (s *Store) InternalSetBit(kind Kind, address uint16, value bool) error {
	t, err := s.bitTableFor(kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.vals[address]; !ok {
		return ErrNoSuchAddress
	}
	t.vals[address] = value
	return nil
}

// InternalSetWord is the tick path: it may update any word table, including
// the read-only input registers.
func (s *Store) InternalSetWord(kind Kind, address uint16, value uint16) error {
	t, err := s.wordTableFor(kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.vals[address]; !ok {
		return ErrNoSuchAddress
	}
	t.vals[address] = value
	return nil
}

// BitValue reads one bit, used by the tick loop as the prior value.
func (s *Store) BitValue(kind Kind, address uint16) (bool, error) {
	t, err := s.bitTableFor(kind)
	if err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vals[address]
	if !ok {
		return false, ErrNoSuchAddress
	}
	return v, nil
}

// WordValue reads one word, used by the tick loop as the prior value.
func (s *Store) WordValue(kind Kind, address uint16) (uint16, error) {
	t, err := s.wordTableFor(kind)
	if err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vals[address]
	if !ok {
		return 0, ErrNoSuchAddress
	}
	return v, nil
}
