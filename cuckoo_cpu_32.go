//go:build !(amd64 || arm64 || loong64 || ppc64 || ppc64le || mips64 || mips64le || riscv64 || s390x || wasm)

package cuckoo

// altSeed is the 32-bit mixing constant from MurmurHash2.
const altSeed uintptr = 0x5bd1e995
