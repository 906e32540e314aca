package glulx

// performArrayLoad implements aload/aloads/aloadb/aloadbit: read a value
// of the given width from array+index*width (bit-indexed for aloadbit),
// per spec.md §4.6.
func (vm *VM) performArrayLoad(opcode uint32, ops []operand) error {
	array, index := ops[0].value, ops[1].value
	dest := ops[2]

	switch opcode {
	case opAload:
		v, err := vm.mem.Mem4(array + index*4)
		if err != nil {
			return err
		}
		return dest.storeResult(vm, v)
	case opAloads:
		v, err := vm.mem.Mem2(array + index*2)
		if err != nil {
			return err
		}
		return dest.storeResult(vm, v)
	case opAloadb:
		v, err := vm.mem.Mem1(array + index)
		if err != nil {
			return err
		}
		return dest.storeResult(vm, uint32(v))
	case opAloadbit:
		addr, bit := bitAddr(array, int32(index))
		b, err := vm.mem.Mem1(addr)
		if err != nil {
			return err
		}
		v := uint32(0)
		if b&(1<<bit) != 0 {
			v = 1
		}
		return dest.storeResult(vm, v)
	default:
		return fatal("unreachable array-load opcode")
	}
}

// performArrayStore implements astore/astores/astoreb/astorebit.
func (vm *VM) performArrayStore(opcode uint32, ops []operand) error {
	array, index, val := ops[0].value, ops[1].value, ops[2].value

	switch opcode {
	case opAstore:
		return vm.mem.MemW4(array+index*4, val)
	case opAstores:
		return vm.mem.MemW2(array+index*2, val)
	case opAstoreb:
		return vm.mem.MemW1(array+index, val)
	case opAstorebit:
		addr, bit := bitAddr(array, int32(index))
		b, err := vm.mem.Mem1(addr)
		if err != nil {
			return err
		}
		if val != 0 {
			b |= 1 << bit
		} else {
			b &^= 1 << bit
		}
		return vm.mem.MemW1(addr, uint32(b))
	default:
		return fatal("unreachable array-store opcode")
	}
}

// bitAddr resolves a signed bit index (aloadbit/astorebit allow negative
// indices, addressing backward from array) into a byte address and bit
// position within that byte, matching exec.c's div/mod-with-floor
// treatment of negative bit offsets.
func bitAddr(array uint32, index int32) (addr uint32, bit uint32) {
	byteOff := index >> 3
	bit = uint32(index & 7)
	return uint32(int64(array) + int64(byteOff)), bit
}

// mzero implements mzero: zero-fill count bytes starting at addr.
func (vm *VM) mzero(count, addr uint32) error {
	for i := uint32(0); i < count; i++ {
		if err := vm.mem.MemW1(addr+i, 0); err != nil {
			return err
		}
	}
	return nil
}

// mcopy implements mcopy: copy count bytes from src to dest, correctly
// handling overlap by choosing the copy direction per spec.md §4.6 (copy
// backward when dest > src and the ranges overlap, else forward).
func (vm *VM) mcopy(count, src, dest uint32) error {
	if dest > src && dest < src+count {
		for i := count; i > 0; i-- {
			b, err := vm.mem.Mem1(src + i - 1)
			if err != nil {
				return err
			}
			if err := vm.mem.MemW1(dest+i-1, uint32(b)); err != nil {
				return err
			}
		}
		return nil
	}
	for i := uint32(0); i < count; i++ {
		b, err := vm.mem.Mem1(src + i)
		if err != nil {
			return err
		}
		if err := vm.mem.MemW1(dest+i, uint32(b)); err != nil {
			return err
		}
	}
	return nil
}
