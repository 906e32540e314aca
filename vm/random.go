package glulx

import "time"

// randomSource reimplements osdepend.c's lo_random/lo_seed_random: a
// 55-word lagged-Fibonacci generator (the same construction as the C
// library's own random(), reimplemented because Go's math/rand does not
// reproduce it bit-for-bit, and save-file-compatible determinism across
// interpreters is worth matching exactly rather than approximating).
type randomSource struct {
	table        [55]uint32
	index1, index2 int
}

// reseed implements setrandom's seed==0 special case (seed from wall
// clock) and otherwise reproduces lo_seed_random exactly.
func (r *randomSource) reseed(seed uint32) {
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}

	var k uint32 = 1
	r.table[54] = seed
	r.index1 = 0
	r.index2 = 31

	for i := 0; i < 55; i++ {
		ii := (21 * i) % 55
		r.table[ii] = k
		k = seed - k
		seed = r.table[ii]
	}
	for loop := 0; loop < 4; loop++ {
		for i := 0; i < 55; i++ {
			r.table[i] = r.table[i] - r.table[(1+i+30)%55]
		}
	}
}

// next implements lo_random.
func (r *randomSource) next() uint32 {
	r.index1 = (r.index1 + 1) % 55
	r.index2 = (r.index2 + 1) % 55
	r.table[r.index1] = r.table[r.index1] - r.table[r.index2]
	return r.table[r.index1]
}

// randomOp implements the random opcode: random(0) returns a number over
// the full 32-bit range; random(N>0) returns a uniform value in [0,N);
// random(N<0) returns a uniform value in (N,0], matching glulxe's
// op_random.
func (vm *VM) randomOp(n int32) uint32 {
	if n == 0 {
		return vm.rng.next()
	}
	if n > 0 {
		return vm.rng.next() % uint32(n)
	}
	r := vm.rng.next() % uint32(-n)
	return uint32(-int32(r))
}
