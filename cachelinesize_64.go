//go:build cuckoo_opt_cachelinesize_64

package cuckoo

// CacheLineSize is forced to 64 bytes by the
// `cuckoo_opt_cachelinesize_64` build tag.
const CacheLineSize = 64
