package cuckoo

import (
	"testing"
)

const benchEntries = 128 << 10

func benchmarkFilledMap(b *testing.B) *Map[int, int] {
	b.Helper()
	m := New[int, int](WithPresize(benchEntries))
	for i := 0; i < benchEntries; i++ {
		m.Insert(i, i)
	}
	b.ResetTimer()
	return m
}

func BenchmarkMapLookup(b *testing.B) {
	m := benchmarkFilledMap(b)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if !m.Lookup(i & (benchEntries - 1)) {
				b.Fail()
			}
			i++
		}
	})
}

func BenchmarkMapLookupMissing(b *testing.B) {
	m := benchmarkFilledMap(b)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if m.Lookup(benchEntries + i&(benchEntries-1)) {
				b.Fail()
			}
			i++
		}
	})
}

func BenchmarkMapInsert(b *testing.B) {
	m := New[int, int](WithPresize(benchEntries))
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Insert(i, i)
			i++
		}
	})
}

func BenchmarkMapInsertDuplicate(b *testing.B) {
	m := benchmarkFilledMap(b)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if m.Insert(i&(benchEntries-1), i) {
				b.Fail()
			}
			i++
		}
	})
}

func BenchmarkMapNoWarmUp(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		m := New[int, int]()
		i := 0
		for pb.Next() {
			m.Insert(i, i)
			m.Lookup(i)
			i++
		}
		_ = m
	})
}
