package glulx

import "bytes"

// Search option bits, per spec.md §4.7.
const (
	searchKeyIndirect       = 0x1
	searchZeroKeyTerminates = 0x2
	searchReturnIndex       = 0x4
)

// keyBytes resolves the comparison key into a byte slice of length n: read
// from memory at key when KeyIndirect is set, otherwise take the low-order
// n bytes of the key value itself (big-endian, as if it were stored at
// some address and read back).
func (vm *VM) keyBytes(key uint32, n uint32, indirect bool) ([]byte, error) {
	if indirect {
		buf := make([]byte, n)
		for i := uint32(0); i < n; i++ {
			b, err := vm.mem.Mem1(key + i)
			if err != nil {
				return nil, err
			}
			buf[i] = b
		}
		return buf, nil
	}
	full := []byte{byte(key >> 24), byte(key >> 16), byte(key >> 8), byte(key)}
	return full[4-n:], nil
}

func (vm *VM) fieldBytes(addr uint32, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		b, err := vm.mem.Mem1(addr + i)
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// linearSearch implements @linearsearch: key keysize start structsize
// numstructs keyoffset options -> result.
func (vm *VM) linearSearch(ops []operand) (uint32, error) {
	key, keysize, start, structsize, numstructs, keyoffset, options :=
		ops[0].value, ops[1].value, ops[2].value, ops[3].value, ops[4].value, ops[5].value, ops[6].value

	indirect := options&searchKeyIndirect != 0
	zeroTerm := options&searchZeroKeyTerminates != 0
	byIndex := options&searchReturnIndex != 0

	target, err := vm.keyBytes(key, keysize, indirect)
	if err != nil {
		return 0, err
	}

	notFound := uint32(0)
	if byIndex {
		notFound = 0xFFFFFFFF
	}

	for i := uint32(0); numstructs == 0xFFFFFFFF || i < numstructs; i++ {
		addr := start + i*structsize
		field, err := vm.fieldBytes(addr+keyoffset, keysize)
		if err != nil {
			return 0, err
		}
		if zeroTerm && isAllZero(field) {
			return notFound, nil
		}
		if bytes.Equal(field, target) {
			if byIndex {
				return i, nil
			}
			return addr, nil
		}
		if numstructs != 0xFFFFFFFF && i+1 >= numstructs {
			break
		}
	}
	return notFound, nil
}

// binarySearch implements @binarysearch: same operand shape as
// linearsearch, but structs must be sorted by the key field and
// ZeroKeyTerminates is meaningless (numstructs is authoritative).
func (vm *VM) binarySearch(ops []operand) (uint32, error) {
	key, keysize, start, structsize, numstructs, keyoffset, options :=
		ops[0].value, ops[1].value, ops[2].value, ops[3].value, ops[4].value, ops[5].value, ops[6].value

	indirect := options&searchKeyIndirect != 0
	byIndex := options&searchReturnIndex != 0

	target, err := vm.keyBytes(key, keysize, indirect)
	if err != nil {
		return 0, err
	}

	notFound := uint32(0)
	if byIndex {
		notFound = 0xFFFFFFFF
	}

	lo, hi := int64(0), int64(numstructs)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		addr := start + uint32(mid)*structsize
		field, err := vm.fieldBytes(addr+keyoffset, keysize)
		if err != nil {
			return 0, err
		}
		switch bytes.Compare(target, field) {
		case 0:
			if byIndex {
				return uint32(mid), nil
			}
			return addr, nil
		case -1:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return notFound, nil
}

// linkedSearch implements @linkedsearch: key keysize start keyoffset
// nextoffset options -> result. structs form a singly-linked list via a
// 4-byte "next" pointer at nextoffset; a zero next pointer ends the list.
func (vm *VM) linkedSearch(ops []operand) (uint32, error) {
	key, keysize, start, keyoffset, nextoffset, options :=
		ops[0].value, ops[1].value, ops[2].value, ops[3].value, ops[4].value, ops[5].value

	indirect := options&searchKeyIndirect != 0
	zeroTerm := options&searchZeroKeyTerminates != 0

	target, err := vm.keyBytes(key, keysize, indirect)
	if err != nil {
		return 0, err
	}

	addr := start
	for addr != 0 {
		field, err := vm.fieldBytes(addr+keyoffset, keysize)
		if err != nil {
			return 0, err
		}
		if zeroTerm && isAllZero(field) {
			return 0, nil
		}
		if bytes.Equal(field, target) {
			return addr, nil
		}
		addr, err = vm.mem.Mem4(addr + nextoffset)
		if err != nil {
			return 0, err
		}
	}
	return 0, nil
}
