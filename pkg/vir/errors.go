package vir

import "fmt"

// StructuralError reports malformed input: an operand in the wrong role, a
// register used without a definition, a dangling block index, and similar.
// Block and Index locate the offending instruction when known (-1 otherwise).
type StructuralError struct {
	Func  string
	Block int
	Index int
	Msg   string
}

func (e *StructuralError) Error() string {
	switch {
	case e.Block >= 0 && e.Index >= 0:
		return fmt.Sprintf("%s: block %d, instr %d: %s", e.Func, e.Block, e.Index, e.Msg)
	case e.Block >= 0:
		return fmt.Sprintf("%s: block %d: %s", e.Func, e.Block, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Func, e.Msg)
	}
}

// Validate checks the instruction against its opcode's operand shape.
func (i Instruction) Validate() error {
	info, ok := i.Op.Info()
	if !ok {
		return fmt.Errorf("unknown opcode %d", int(i.Op))
	}
	if len(i.Args) != info.Args {
		return fmt.Errorf("%s takes %d operands, got %d", info.Name, info.Args, len(i.Args))
	}
	if info.HasDest && i.Dest == nil {
		return fmt.Errorf("%s needs a destination", info.Name)
	}
	if !info.HasDest && i.Dest != nil {
		return fmt.Errorf("%s has no destination", info.Name)
	}
	if _, isImm := i.Dest.(Imm); isImm {
		return fmt.Errorf("%s: immediate used as destination", info.Name)
	}
	for _, k := range info.ImmArgs {
		if _, isImm := i.Args[k].(Imm); !isImm {
			return fmt.Errorf("%s: operand %d must be an immediate", info.Name, k+1)
		}
	}
	for k, a := range i.Args {
		if a == nil {
			return fmt.Errorf("%s: operand %d is missing", info.Name, k+1)
		}
		if r, ok := a.(VReg); ok && r <= 0 {
			return fmt.Errorf("%s: invalid register %s", info.Name, r)
		}
	}
	if r, ok := i.Dest.(VReg); ok && r <= 0 {
		return fmt.Errorf("%s: invalid register %s", info.Name, r)
	}
	return nil
}
