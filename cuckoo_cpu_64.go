//go:build amd64 || arm64 || loong64 || ppc64 || ppc64le || mips64 || mips64le || riscv64 || s390x || wasm

package cuckoo

// altSeed is the 64-bit mixing constant from MurmurHash2. Multiplying
// a partial tag by it spreads the tag's eight bits across the whole
// word before the XOR that derives the alternate bucket index.
const altSeed uintptr = 0xc6a4a7935bd1e995
