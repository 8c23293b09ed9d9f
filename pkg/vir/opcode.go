package vir

import (
	"fmt"
	"sync"
)

// Opcode identifies an entry in the opcode table
type Opcode int

// OpInfo describes the operand shape of an opcode.
type OpInfo struct {
	Name    string
	Args    int   // exact number of arguments
	HasDest bool  // produces a value
	ImmArgs []int // argument positions that must be immediates
}

// Built-in opcodes. Their numbering is the registration order below.
const (
	OpNop Opcode = iota
	OpConst
	OpMove
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpCmpEq
	OpCmpNe
	OpCmpLt
	OpCmpLe
	OpLoad
	OpStore
	OpTrap
	OpSpill
	OpReload
)

// opcodeTable is append-only until the first lookup, then frozen.
// Registration after the freeze is a programming error and panics.
type opcodeTable struct {
	mu      sync.Mutex
	once    sync.Once
	frozen  bool
	entries []OpInfo
	byName  map[string]Opcode
}

var opcodes = newOpcodeTable()

func newOpcodeTable() *opcodeTable {
	t := &opcodeTable{byName: make(map[string]Opcode)}
	for _, info := range []OpInfo{
		{Name: "nop"},
		{Name: "const", Args: 1, HasDest: true, ImmArgs: []int{0}},
		{Name: "mov", Args: 1, HasDest: true},
		{Name: "add", Args: 2, HasDest: true},
		{Name: "sub", Args: 2, HasDest: true},
		{Name: "mul", Args: 2, HasDest: true},
		{Name: "and", Args: 2, HasDest: true},
		{Name: "or", Args: 2, HasDest: true},
		{Name: "xor", Args: 2, HasDest: true},
		{Name: "shl", Args: 2, HasDest: true},
		{Name: "shr", Args: 2, HasDest: true},
		{Name: "cmpeq", Args: 2, HasDest: true},
		{Name: "cmpne", Args: 2, HasDest: true},
		{Name: "cmplt", Args: 2, HasDest: true},
		{Name: "cmple", Args: 2, HasDest: true},
		{Name: "load", Args: 1, HasDest: true},
		{Name: "store", Args: 2},
		{Name: "trap", Args: 3, ImmArgs: []int{0, 1}},
		{Name: "spill", Args: 1, HasDest: true},
		{Name: "reload", Args: 1, HasDest: true},
	} {
		t.add(info)
	}
	return t
}

func (t *opcodeTable) add(info OpInfo) Opcode {
	if _, dup := t.byName[info.Name]; dup {
		panic(fmt.Sprintf("vir: opcode %q registered twice", info.Name))
	}
	op := Opcode(len(t.entries))
	t.entries = append(t.entries, info)
	t.byName[info.Name] = op
	return op
}

func (t *opcodeTable) freeze() {
	t.once.Do(func() {
		t.mu.Lock()
		t.frozen = true
		t.mu.Unlock()
	})
}

// RegisterOpcode adds an opcode to the process-wide table. It must run during
// program initialization, before any lookup; afterwards the table is read-only
// and concurrent readers need no locking.
func RegisterOpcode(info OpInfo) Opcode {
	opcodes.mu.Lock()
	defer opcodes.mu.Unlock()
	if opcodes.frozen {
		panic(fmt.Sprintf("vir: RegisterOpcode(%q) after the opcode table was frozen", info.Name))
	}
	return opcodes.add(info)
}

// Info returns the metadata for op.
func (op Opcode) Info() (OpInfo, bool) {
	opcodes.freeze()
	if op < 0 || int(op) >= len(opcodes.entries) {
		return OpInfo{}, false
	}
	return opcodes.entries[op], true
}

func (op Opcode) String() string {
	if info, ok := op.Info(); ok {
		return info.Name
	}
	return fmt.Sprintf("op%d", int(op))
}

// LookupOpcode finds an opcode by its textual name.
func LookupOpcode(name string) (Opcode, bool) {
	opcodes.freeze()
	op, ok := opcodes.byName[name]
	return op, ok
}
