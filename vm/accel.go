package glulx

// accelTable is the accelfunc/accelparam registry described in
// SPEC_FULL.md's supplemented features: glulxe lets a host substitute a
// native implementation for certain well-known Inform veneer routines
// (OC_Toss, RV_... etc) for speed. A full accelerated-function engine is
// out of scope here (it requires replicating Inform's compiled-code
// veneer semantics number-by-number); this build records the bindings
// faithfully — accelfunc/accelparam never fail and gestalt(AccelFunc, n)
// answers correctly — while execution always falls through to the
// ordinary interpreted function body.
type accelTable struct {
	funcs  map[uint32]uint32 // accel number -> function address
	params [8]uint32
}

func newAccelTable() *accelTable {
	return &accelTable{funcs: make(map[uint32]uint32)}
}

// setFunc implements accelfunc: index 0 addr clears a binding; any other
// index records which accel number addr is registered under (0 clears).
func (t *accelTable) setFunc(index, addr uint32) {
	if addr == 0 {
		delete(t.funcs, index)
		return
	}
	t.funcs[index] = addr
}

func (t *accelTable) hasFunc(index uint32) bool {
	_, ok := t.funcs[index]
	return ok
}

// setParam implements accelparam: records one of the fixed parameter
// slots (object table address, class numbering, etc) that an accelerated
// implementation would need.
func (t *accelTable) setParam(index, val uint32) {
	if int(index) < len(t.params) {
		t.params[index] = val
	}
}
