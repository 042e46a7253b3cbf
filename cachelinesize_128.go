//go:build cuckoo_opt_cachelinesize_128

package cuckoo

// CacheLineSize is forced to 128 bytes by the
// `cuckoo_opt_cachelinesize_128` build tag. Useful on NUMA machines
// where adjacent-line prefetching makes 64-byte padding insufficient.
const CacheLineSize = 128
