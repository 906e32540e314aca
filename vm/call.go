package glulx

import "encoding/binary"

const (
	funcHeaderStackArgs = 0xC0
	funcHeaderLocalArgs = 0xC1
)

type localDesc struct {
	typ   byte // 1, 2, or 4
	count byte
}

// readFunctionHeader parses a function's entry byte and locals-format
// list directly from the image, per spec.md §4.4 / §6. It returns the
// address of the function's first real instruction.
func (vm *VM) readFunctionHeader(addr uint32) (stackArgs bool, locals []localDesc, entryPC uint32, err error) {
	b, err := vm.mem.Mem1(addr)
	if err != nil {
		return false, nil, 0, err
	}
	switch b {
	case funcHeaderStackArgs:
		stackArgs = true
	case funcHeaderLocalArgs:
		stackArgs = false
	default:
		return false, nil, 0, errBadFunctionEntry
	}

	p := addr + 1
	for {
		typ, err := vm.mem.Mem1(p)
		if err != nil {
			return false, nil, 0, err
		}
		count, err := vm.mem.Mem1(p + 1)
		if err != nil {
			return false, nil, 0, err
		}
		p += 2
		if typ == 0 && count == 0 {
			break
		}
		if typ != 1 && typ != 2 && typ != 4 {
			return false, nil, 0, errBadFunctionEntry
		}
		locals = append(locals, localDesc{typ: typ, count: count})
	}
	return stackArgs, locals, p, nil
}

// frameLayout computes the size (in bytes) of the locals region: the sum
// of type*count over the (type,count) list, with no per-slot offsets and
// no alignment padding between groups. A load/store-local operand always
// reads or writes a full 32-bit word at its offset (no sub-word
// local-access opcodes exist in Glulx).
func frameLayout(locals []localDesc) (size uint32) {
	for _, d := range locals {
		size += uint32(d.typ) * uint32(d.count)
	}
	return size
}

// enterFunction establishes a new call frame for the function at addr,
// using args as the fixed/stack argument list (topmost argument first,
// matching spec.md's "topmost = first argument"), and sets pc to the
// function's first instruction. This implements spec.md §4.4 Function
// entry for call/callf*/tailcall alike.
func (vm *VM) enterFunction(addr uint32, args []uint32) error {
	stackArgs, locals, entryPC, err := vm.readFunctionHeader(addr)
	if err != nil {
		return err
	}

	localsSize := frameLayout(locals)
	headerBytes := uint32(8) // FrameLen + LocalsPos
	listBytes := uint32(len(locals)+1) * 2
	localsPos := headerBytes + listBytes
	if localsPos%4 != 0 {
		localsPos += 4 - localsPos%4
	}
	frameLen := localsPos + localsSize
	if frameLen%4 != 0 {
		frameLen += 4 - frameLen%4
	}

	newFrame := vm.stack.stackptr
	if err := vm.stack.checkRoom(frameLen); err != nil {
		return err
	}
	// Zero the whole frame region (header + locals) before filling it in;
	// the backing array may carry stale bytes from a popped frame.
	for i := uint32(0); i < frameLen; i++ {
		vm.stack.bytes[newFrame+i] = 0
	}
	binary.BigEndian.PutUint32(vm.stack.bytes[newFrame:], frameLen)
	binary.BigEndian.PutUint32(vm.stack.bytes[newFrame+4:], localsPos)

	p := newFrame + 8
	for _, d := range locals {
		vm.stack.bytes[p] = d.typ
		vm.stack.bytes[p+1] = d.count
		p += 2
	}
	// terminator (0,0) already present from the zero-fill above.

	vm.stack.frameptr = newFrame
	vm.stack.stackptr = newFrame + frameLen
	vm.stack.valstackbase = vm.stack.stackptr

	localsBase := newFrame + localsPos
	if stackArgs {
		// Stack-args form: push argument count, then the arguments
		// themselves (so the callee can pop them with stkcount/stkpeek);
		// nothing is written into locals.
		if err := vm.stack.Push4(uint32(len(args))); err != nil {
			return err
		}
		for i := len(args) - 1; i >= 0; i-- {
			if err := vm.stack.Push4(args[i]); err != nil {
				return err
			}
		}
	} else {
		// Local-args form: arguments fill the first N locals (4 bytes
		// each slot, per frameLayout's word-access convention); excess
		// arguments are discarded, missing ones stay zero.
		for i, a := range args {
			off := uint32(i) * 4
			if off+4 > localsSize {
				break
			}
			binary.BigEndian.PutUint32(vm.stack.bytes[localsBase+off:], a)
		}
	}

	vm.pc = entryPC
	return nil
}

// leaveFunction discards the current activation's frame (locals and
// value stack) without touching the call-stub beneath it; callers decide
// whether to terminate or pop the stub next, per spec.md §4.3/§4.4.
func (vm *VM) leaveFunction() {
	vm.stack.stackptr = vm.stack.frameptr
}

// popCallStubInto pops the call-stub now sitting at the top of the stack,
// restores pc/frameptr/valstackbase, and stores val through the stub's
// destination. restore and restoreundo reuse this on success, passing
// sentinelRestoreOK (see save.go) as val itself rather than tagging the
// stub's desttype; the stub's destination is still whatever the original
// save/saveundo opcode's own destination operand was.
func (vm *VM) popCallStubInto(val uint32) error {
	stub, err := vm.stack.popCallStub()
	if err != nil {
		return err
	}
	vm.pc = stub.pc
	vm.stack.frameptr = stub.frameptr
	vm.recomputeValStackBase()
	return vm.storeOperand(stub.desttype, stub.destaddr, val)
}

// recomputeValStackBase re-derives valstackbase from the frame header
// sitting at the (just-restored) frameptr, per the FrameLen field written
// by enterFunction.
func (vm *VM) recomputeValStackBase() {
	if vm.stack.frameptr == 0 && vm.stack.stackptr == 0 {
		vm.stack.valstackbase = 0
		return
	}
	frameLen := binary.BigEndian.Uint32(vm.stack.bytes[vm.stack.frameptr:])
	vm.stack.valstackbase = vm.stack.frameptr + frameLen
}

// performCall implements the call opcode: pop argc values off the stack
// (topmost = first argument), push a callstub naming dest, and enter fn.
func (vm *VM) performCall(fn, argc uint32, desttype, destaddr uint32) error {
	args := make([]uint32, argc)
	for i := uint32(0); i < argc; i++ {
		v, err := vm.stack.Pop4()
		if err != nil {
			return err
		}
		args[i] = v
	}
	if err := vm.stack.pushCallStub(desttype, destaddr, vm.pc, vm.stack.frameptr); err != nil {
		return err
	}
	return vm.enterFunction(fn, args)
}

// performCallF implements callf/callfi/callfii/callfiii: fixed arguments
// taken directly from operand slots, nothing popped from the stack.
func (vm *VM) performCallF(fn uint32, args []uint32, desttype, destaddr uint32) error {
	if err := vm.stack.pushCallStub(desttype, destaddr, vm.pc, vm.stack.frameptr); err != nil {
		return err
	}
	return vm.enterFunction(fn, args)
}

// performTailCall implements tailcall: pop arguments, leave the current
// function without pushing a new stub, then enter the target, so its
// eventual return goes straight to this function's own caller.
func (vm *VM) performTailCall(fn, argc uint32) error {
	args := make([]uint32, argc)
	for i := uint32(0); i < argc; i++ {
		v, err := vm.stack.Pop4()
		if err != nil {
			return err
		}
		args[i] = v
	}
	vm.leaveFunction()
	return vm.enterFunction(fn, args)
}

// performReturn implements return: leave the current function; if no
// activation remains, the caller (the dispatcher) terminates, otherwise
// pop the callstub and store val through it.
func (vm *VM) performReturn(val uint32) (done bool, err error) {
	vm.leaveFunction()
	if vm.stack.stackptr == 0 {
		return true, nil
	}
	return false, vm.popCallStubInto(val)
}

// performCatch implements catch: push a callstub naming dest, record the
// current stackptr as the token, store it through dest, then jump.
func (vm *VM) performCatch(desttype, destaddr uint32, jumpTarget uint32) error {
	if err := vm.stack.pushCallStub(desttype, destaddr, vm.pc, vm.stack.frameptr); err != nil {
		return err
	}
	token := vm.stack.stackptr
	if err := vm.storeOperand(desttype, destaddr, token); err != nil {
		return err
	}
	return vm.performJump(jumpTarget)
}

// performThrow implements throw: unwind the stack to the token, pop the
// callstub that must sit there, and store val through it.
func (vm *VM) performThrow(val, token uint32) error {
	if token > vm.stack.Size() || token < callStubSize {
		return fatal("invalid catch token in throw")
	}
	vm.stack.stackptr = token
	return vm.popCallStubInto(val)
}
