package network

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// IPAllocator hands out addresses from a CIDR block in ascending order,
// reserving the network address and .1 gateway address, and preferring
// released addresses over the next unassigned one (spec.md §8's testable
// property).
type IPAllocator struct {
	mu        sync.Mutex
	base      uint32 // network address as a big-endian uint32
	size      uint32 // number of host addresses in the block
	next      uint32 // next never-yet-issued offset from base
	released  uint32Heap
	allocated map[uint32]bool
}

func NewIPAllocator(cidr string) (*IPAllocator, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse CIDR %s: %w", cidr, err)
	}
	ones, bits := ipnet.Mask.Size()
	size := uint32(1) << uint(bits-ones)

	return &IPAllocator{
		base:      binary.BigEndian.Uint32(ipnet.IP.To4()),
		size:      size,
		next:      2, // offset 0 = network address, 1 = gateway
		allocated: map[uint32]bool{},
	}, nil
}

// Allocate returns the next address: the smallest previously-released
// address if any exists, otherwise the next never-issued offset.
func (a *IPAllocator) Allocate() (net.IP, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var offset uint32
	if a.released.Len() > 0 {
		offset = heap.Pop(&a.released).(uint32)
	} else {
		if a.next >= a.size-1 { // reserve the broadcast address at size-1
			return nil, fmt.Errorf("address space exhausted")
		}
		offset = a.next
		a.next++
	}
	a.allocated[offset] = true
	return offsetToIP(a.base, offset), nil
}

// Release returns ip to the pool, making it eligible for reuse ahead of
// any higher, never-yet-issued offset.
func (a *IPAllocator) Release(ip net.IP) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset := binary.BigEndian.Uint32(ip.To4()) - a.base
	if !a.allocated[offset] {
		return
	}
	delete(a.allocated, offset)
	heap.Push(&a.released, offset)
}

func offsetToIP(base, offset uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, base+offset)
	return ip
}

// uint32Heap is a min-heap so Release+Allocate always returns the
// lowest-numbered freed address first.
type uint32Heap []uint32

func (h uint32Heap) Len() int            { return len(h) }
func (h uint32Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h uint32Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uint32Heap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *uint32Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
