package server

import (
	"errors"
	"fmt"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/protocol"
)

// Machine is the protocol state of one connection. Only the connection's
// reader goroutine uses it.
type Machine struct {
	state   protocol.State
	table   *packet.Table
	history []protocol.State
}

// NewMachine returns a machine in the handshake state.
func NewMachine() *Machine {
	return &Machine{
		state:   protocol.StateHandshake,
		history: []protocol.State{protocol.StateHandshake},
	}
}

// State returns the current state.
func (m *Machine) State() protocol.State {
	return m.state
}

// Table returns the packet table of the negotiated version, or nil before
// the handshake.
func (m *Machine) Table() *packet.Table {
	return m.table
}

// History returns every state entered, in order.
func (m *Machine) History() []protocol.State {
	return append([]protocol.State(nil), m.history...)
}

// SetVersion fixes the protocol version of the connection.
func (m *Machine) SetVersion(t *packet.Table) error {
	if m.table != nil {
		return ErrVersionAlreadySet
	}
	m.table = t
	return nil
}

// legal reports whether from -> to is a valid edge.
func legal(from, to protocol.State) bool {
	if to == protocol.StateClosed {
		return from != protocol.StateClosed
	}
	switch from {
	case protocol.StateHandshake:
		return to == protocol.StateStatus || to == protocol.StateLogin
	case protocol.StateLogin:
		return to == protocol.StateConfiguration
	case protocol.StateConfiguration:
		return to == protocol.StatePlay
	case protocol.StatePlay:
		return to == protocol.StateConfiguration
	}
	return false
}

// Transition moves to state to. An illegal edge closes the machine and
// returns a protocol violation.
func (m *Machine) Transition(to protocol.State) error {
	if !legal(m.state, to) {
		from := m.state
		m.close()
		return protocol.Violation(fmt.Errorf("illegal transition %s -> %s", from, to))
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

// Close moves to the closed state. It is a no-op once closed.
func (m *Machine) Close() {
	m.close()
}

func (m *Machine) close() {
	if m.state == protocol.StateClosed {
		return
	}
	m.state = protocol.StateClosed
	m.history = append(m.history, protocol.StateClosed)
}

// Dispatch decodes a serverbound packet of the current state. An id that
// is unknown in the state closes the machine.
func (m *Machine) Dispatch(id int32, payload []byte) (packet.Packet, error) {
	if m.state == protocol.StateClosed {
		return nil, ErrConnClosed
	}
	t := m.table
	if t == nil {
		t = packet.Default().Latest()
	}
	p, err := t.Decode(m.state, protocol.Serverbound, id, payload)
	if err != nil {
		m.close()
		if errors.Is(err, protocol.ErrUnknownPacketID) {
			return nil, protocol.Violation(err)
		}
		return nil, err
	}
	return p, nil
}

// Unexpected closes the machine and reports p as illegal at this point.
func (m *Machine) Unexpected(p packet.Packet) error {
	state := m.state
	m.close()
	return protocol.Violation(fmt.Errorf("%w: %s in %s", protocol.ErrUnexpectedPacket, p.Type(), state))
}
