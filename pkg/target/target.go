// Package target describes the register file and spill area of a host
// architecture, loaded from built-in tables or YAML.
package target

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sentinel causes wrapped by ConfigError
var (
	ErrZeroBudget            = errors.New("register budget is zero")
	ErrInsufficientRegisters = errors.New("instruction needs more registers than the budget")
	ErrSlotAddressing        = errors.New("spill slots exceed the addressable frame")
	ErrInvalidTarget         = errors.New("invalid target description")
)

// ConfigError reports a target that cannot serve an allocation request.
type ConfigError struct {
	Target string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("target %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("target %s: %v: %s", e.Target, e.Err, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Target is a host register file plus spill-slot geometry
type Target struct {
	Name          string   `yaml:"name"`
	Registers     []string `yaml:"registers"`
	SlotSize      int64    `yaml:"slot_size"`
	StackAlign    int64    `yaml:"stack_align"`
	MaxSpillSlots int      `yaml:"max_spill_slots"` // 0 means unlimited
}

// Caller-saved scratch registers that translated code may use freely.
var builtins = map[string]Target{
	"amd64": {
		Name:       "amd64",
		Registers:  []string{"RAX", "RCX", "RDX", "R8", "R9", "R10", "R11"},
		SlotSize:   8,
		StackAlign: 16,
	},
	"arm64": {
		Name: "arm64",
		Registers: []string{
			"X0", "X1", "X2", "X3", "X4", "X5", "X6", "X7",
			"X8", "X9", "X10", "X11", "X12", "X13", "X14", "X15",
		},
		SlotSize:      8,
		StackAlign:    16,
		MaxSpillSlots: 4095 / 8, // unsigned 12-bit scaled offset
	},
}

// Builtin returns a copy of a built-in target.
func Builtin(name string) (*Target, bool) {
	t, ok := builtins[name]
	if !ok {
		return nil, false
	}
	t.Registers = append([]string(nil), t.Registers...)
	return &t, true
}

// BuiltinNames lists the built-in targets in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Generic returns a target with n registers named r0..r(n-1).
func Generic(n int) *Target {
	t := &Target{Name: fmt.Sprintf("generic%d", n), SlotSize: 8, StackAlign: 16}
	for i := 0; i < n; i++ {
		t.Registers = append(t.Registers, fmt.Sprintf("r%d", i))
	}
	return t
}

// Parse decodes a YAML target description. Unknown keys are rejected.
func Parse(data []byte) (*Target, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var t Target
	if err := dec.Decode(&t); err != nil {
		return nil, &ConfigError{Target: "<yaml>", Detail: err.Error(), Err: ErrInvalidTarget}
	}
	if t.SlotSize == 0 {
		t.SlotSize = 8
	}
	if t.StackAlign == 0 {
		t.StackAlign = 16
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads a YAML target description from path.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks the description for internal consistency.
func (t *Target) Validate() error {
	bad := func(detail string) error {
		return &ConfigError{Target: t.Name, Detail: detail, Err: ErrInvalidTarget}
	}
	if t.Name == "" {
		return bad("missing name")
	}
	seen := make(map[string]bool, len(t.Registers))
	for _, r := range t.Registers {
		if r == "" {
			return bad("empty register name")
		}
		if seen[r] {
			return bad("register " + r + " listed twice")
		}
		seen[r] = true
	}
	if t.SlotSize <= 0 {
		return bad("slot_size must be positive")
	}
	if t.StackAlign <= 0 || t.StackAlign&(t.StackAlign-1) != 0 {
		return bad("stack_align must be a power of two")
	}
	if t.MaxSpillSlots < 0 {
		return bad("max_spill_slots must not be negative")
	}
	return nil
}

// WithBudget returns a copy restricted to the first n registers. When the
// target has fewer, synthetic names r<i> fill the gap.
func (t *Target) WithBudget(n int) *Target {
	out := *t
	out.Registers = nil
	for i := 0; i < n; i++ {
		if i < len(t.Registers) {
			out.Registers = append(out.Registers, t.Registers[i])
		} else {
			out.Registers = append(out.Registers, fmt.Sprintf("r%d", i))
		}
	}
	return &out
}

// Budget is the number of allocatable registers.
func (t *Target) Budget() int {
	return len(t.Registers)
}

// CheckBudget fails with ErrZeroBudget when there is nothing to allocate into.
func (t *Target) CheckBudget() error {
	if t.Budget() == 0 {
		return &ConfigError{Target: t.Name, Err: ErrZeroBudget}
	}
	return nil
}

// CheckSlots fails when n spill slots cannot all be addressed.
func (t *Target) CheckSlots(n int) error {
	if t.MaxSpillSlots > 0 && n > t.MaxSpillSlots {
		return &ConfigError{
			Target: t.Name,
			Detail: fmt.Sprintf("%d slots needed, %d addressable", n, t.MaxSpillSlots),
			Err:    ErrSlotAddressing,
		}
	}
	return nil
}

// RegName names physical register i.
func (t *Target) RegName(i int) string {
	if i >= 0 && i < len(t.Registers) {
		return t.Registers[i]
	}
	return fmt.Sprintf("r%d", i)
}
