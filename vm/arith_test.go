package glulx

import "testing"

func runToQuit(t *testing.T, vm *VM) {
	t.Helper()
	err := vm.Run()
	assert(t, err == nil, "VM.Run() returned an error: %v", err)
	assert(t, vm.Done(), "VM did not reach a terminal state")
}

// TestAddStoresSum exercises the scenario spec.md §8 names explicitly:
// add 3, 5 stores 8.
func TestAddStoresSum(t *testing.T) {
	vm, resultAddr := newTestVMWithResultAddr(t, func(addr uint32) []byte {
		w := &codeWriter{}
		w.emit(opAdd, immed1(3), immed1(5), storeMem4(addr))
		w.emit(opQuit)
		return w.buf
	}, testImageOpts{})

	runToQuit(t, vm)

	v, err := vm.Memory().Mem4(resultAddr)
	assert(t, err == nil, "reading result: %v", err)
	assert(t, v == 8, "expected 8, got %d", v)
}

// TestDivIntMinByMinusOneWraps covers INT_MIN / -1 (must wrap, not trap),
// per spec.md §4.2/§8; TestModTakesDividendSign covers -7 mod 3.
func TestDivIntMinByMinusOneWraps(t *testing.T) {
	vm, resultAddr := newTestVMWithResultAddr(t, func(addr uint32) []byte {
		w := &codeWriter{}
		// INT_MIN / -1 wraps to INT_MIN, not a trap.
		w.emit(opDiv, immed4(0x80000000), immed4(0xFFFFFFFF), storeMem4(addr))
		w.emit(opQuit)
		return w.buf
	}, testImageOpts{})
	runToQuit(t, vm)
	v, err := vm.Memory().Mem4(resultAddr)
	assert(t, err == nil, "%v", err)
	assert(t, v == 0x80000000, "expected INT_MIN, got 0x%x", v)
}

func TestModTakesDividendSign(t *testing.T) {
	vm, resultAddr := newTestVMWithResultAddr(t, func(addr uint32) []byte {
		w := &codeWriter{}
		w.emit(opMod, immed1(-7), immed1(3), storeMem4(addr))
		w.emit(opQuit)
		return w.buf
	}, testImageOpts{})
	runToQuit(t, vm)
	v, err := vm.Memory().Mem4(resultAddr)
	assert(t, err == nil, "%v", err)
	assert(t, int32(v) == -1, "expected -1, got %d", int32(v))
}

func TestDivByZeroIsFatal(t *testing.T) {
	vm := newTestVM(t, func() []byte {
		w := &codeWriter{}
		w.emit(opDiv, immed1(1), immed1(0), storeDiscard())
		w.emit(opQuit)
		return w.buf
	}(), testImageOpts{})

	err := vm.Run()
	assert(t, err != nil, "expected a fatal error")
	fe, ok := err.(*FatalError)
	assert(t, ok, "expected *FatalError, got %T", err)
	assert(t, fe.Reason == errDivideByZero.(*FatalError).Reason, "unexpected reason: %s", fe.Reason)
}

// TestShiftEdges exercises a shift amount equal to the word width, which
// must saturate rather than wrap (spec.md §8).
func TestShiftEdges(t *testing.T) {
	vm, resultAddr := newTestVMWithResultAddr(t, func(addr uint32) []byte {
		w := &codeWriter{}
		w.emit(opUShiftR, immed4(0xFFFFFFFF), immed1(32), storeMem4(addr))
		w.emit(opQuit)
		return w.buf
	}, testImageOpts{})
	runToQuit(t, vm)
	v, err := vm.Memory().Mem4(resultAddr)
	assert(t, err == nil, "%v", err)
	assert(t, v == 0, "shift by >=32 should saturate to 0, got 0x%x", v)
}

func TestSignedShiftRightPropagatesSign(t *testing.T) {
	vm, resultAddr := newTestVMWithResultAddr(t, func(addr uint32) []byte {
		w := &codeWriter{}
		w.emit(opSShiftR, immed4(0x80000000), immed1(4), storeMem4(addr))
		w.emit(opQuit)
		return w.buf
	}, testImageOpts{})
	runToQuit(t, vm)
	v, err := vm.Memory().Mem4(resultAddr)
	assert(t, err == nil, "%v", err)
	assert(t, v == 0xF8000000, "expected sign-extended shift, got 0x%x", v)
}
