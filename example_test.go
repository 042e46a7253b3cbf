package cuckoo_test

import (
	"fmt"

	"github.com/amaliujia/cuckoo"
)

func ExampleMap() {
	m := cuckoo.New[string, int]()

	fmt.Println(m.Insert("alpha", 1))
	fmt.Println(m.Insert("alpha", 2))
	fmt.Println(m.Lookup("alpha"))

	v, ok := m.Load("alpha")
	fmt.Println(v, ok)
	fmt.Println(m.Len())

	// Output:
	// true
	// false
	// true
	// 1 true
	// 1
}

func ExampleNewWithHasher() {
	// Bucket placement follows the injected hash; here it combines
	// the device and probe ids and ignores the seed.
	type sensor struct {
		Device uint32
		Probe  uint32
	}
	m := cuckoo.NewWithHasher[sensor, float64](
		func(key sensor, seed uintptr) uintptr {
			return (uintptr(key.Device)<<7 ^ uintptr(key.Probe)) * 0x9e3779b9
		},
		nil,
	)

	m.Insert(sensor{Device: 1, Probe: 1}, 20.5)
	m.Insert(sensor{Device: 1, Probe: 2}, 21.0)
	fmt.Println(m.Len())

	// Output:
	// 2
}
