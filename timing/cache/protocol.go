package cache

import "github.com/sarchlab/cachesim/memsys"

// A FetchRequest asks the instruction cache for the word at Address.
type FetchRequest struct {
	Address uint32
}

// A FetchResponse carries a fetched instruction word. Valid is asserted in
// the cycle the word is available: same cycle on a hit, the fill cycle on
// a miss.
type FetchResponse struct {
	Data  uint32
	Valid bool
}

// A Request is one data-cache access from the pipeline's memory stage.
type Request struct {
	Address uint32
	IsStore bool
	Size    AccessSize
	Data    uint32
}

// A Response answers a data-cache request. Data is zero-extended to the
// maximum access width. Fault is the same-cycle address-fault signal; a
// faulting request has no other effect. Accepted stores produce no
// response of their own.
type Response struct {
	Data  uint32
	Valid bool
	Fault bool
}

// MemoryPort is the cache-side view of a memsys channel: single
// outstanding request, response valid for exactly one take.
type MemoryPort interface {
	Busy() bool
	Issue(memsys.Request)
	TakeResponse() (memsys.Response, bool)
}

// Statistics counts cache events since construction or the last reset.
type Statistics struct {
	Reads             uint64 `json:"reads"`
	Writes            uint64 `json:"writes"`
	Hits              uint64 `json:"hits"`
	Misses            uint64 `json:"misses"`
	Evictions         uint64 `json:"evictions"`
	Writebacks        uint64 `json:"writebacks"`
	Fills             uint64 `json:"fills"`
	StoreBufferPushes uint64 `json:"store_buffer_pushes"`
	StoreBufferDrains uint64 `json:"store_buffer_drains"`
	AddressFaults     uint64 `json:"address_faults"`
}

// extractValue reads size bytes at offset from line data, little-endian,
// zero-extended to the maximum access width.
func extractValue(data []byte, offset int, size AccessSize) uint32 {
	var value uint32
	for i := 0; i < int(size); i++ {
		value |= uint32(data[offset+i]) << (i * 8)
	}
	return value
}

// mergeValue writes the low size bytes of value into line data at offset,
// little-endian.
func mergeValue(data []byte, offset int, size AccessSize, value uint32) {
	for i := 0; i < int(size); i++ {
		data[offset+i] = byte(value >> (i * 8))
	}
}
