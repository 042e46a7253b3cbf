package cuckoo

import (
	"math/bits"
	"unsafe"
)

// hashFunc hashes the key behind the pointer with the given seed.
// equalFunc compares the keys behind the two pointers.
type (
	hashFunc  func(unsafe.Pointer, uintptr) uintptr
	equalFunc func(unsafe.Pointer, unsafe.Pointer) bool
)

// partialTag summarizes a full hash into the 8-bit tag stored next to
// an occupied slot. The low bit is forced on so a tag is never zero;
// a zero tag byte marks a free slot in the bucket meta word.
func partialTag(h uintptr) uint8 {
	return uint8(h>>(bits.UintSize-8)) | 1
}

// indexOff derives the primary bucket index from a full hash.
func indexOff(h, mask uintptr) uintptr {
	return h & mask
}

// altOff derives the other legal bucket index for an occupant from
// its tag and current position alone, without rehashing the key.
// For any fixed tag it is an involution on the bucket space:
// altOff(t, altOff(t, i)) == i.
func altOff(tag uint8, idx, mask uintptr) uintptr {
	return (idx ^ (uintptr(tag) * altSeed)) & mask
}

// defaultHasher obtains Go's built-in hash and equality functions for
// the key type using reflection on the runtime map type.
//
// This approach provides direct access to the type-specific functions
// without the overhead of switch statements, resulting in better
// performance.
//
// Notes:
//   - This implementation relies on Go's internal type representation
//   - It should be verified for compatibility with each Go version upgrade
func defaultHasher[K comparable]() (keyHash hashFunc, keyEqual equalFunc) {
	var m map[K]struct{}
	mapType := iTypeOf(m).MapType()
	return mapType.Hasher, mapType.Key.Equal
}

type iTFlag uint8
type iKind uint8
type iNameOff int32

// iTypeOff is the offset to a type from moduledata.types. See
// resolveTypeOff in runtime.
type iTypeOff int32

type iType struct {
	Size_       uintptr
	PtrBytes    uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash        uint32  // hash of type; avoids computation in hash tables
	TFlag       iTFlag  // extra type information flags
	Align_      uint8   // alignment of variable with this type
	FieldAlign_ uint8   // alignment of struct field with this type
	Kind_       iKind   // enumeration for C
	// function for comparing objects of this type
	// (ptr to object A, ptr to object B) -> ==?
	Equal func(unsafe.Pointer, unsafe.Pointer) bool
	// GCData stores the GC type data for the garbage collector.
	GCData    *byte
	Str       iNameOff // string form
	PtrToThis iTypeOff // type for pointer to this type, may be zero
}

func (t *iType) MapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key   *iType
	Elem  *iType
	Group *iType // internal type representing a slot group
	// function for hashing keys (ptr to key, seed) -> hash
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	// Types are either static (for compiler-created types) or
	// heap-allocated but always reachable (for reflection-created
	// types, held in the central map). So there is no need to
	// escape types. noescape here help avoid unnecessary escape
	// of v.
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
// nolint:all
//
//go:nosplit
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
