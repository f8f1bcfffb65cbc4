package metrics

import (
	"runtime"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// Memory is a point-in-time view of the Go heap.
type Memory struct {
	HeapInUse  uint64
	TotalAlloc uint64
	Sys        uint64
	NumGC      uint32
}

// ReadMemory samples the runtime memory statistics.
func ReadMemory() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Memory{
		HeapInUse:  ms.HeapInuse,
		TotalAlloc: ms.TotalAlloc,
		Sys:        ms.Sys,
		NumGC:      ms.NumGC,
	}
}

// String formats the sample with human readable sizes.
func (m Memory) String() string {
	return "heap=" + humanize.IBytes(m.HeapInUse) +
		" total_alloc=" + humanize.IBytes(m.TotalAlloc) +
		" sys=" + humanize.IBytes(m.Sys) +
		" gc=" + humanize.Comma(int64(m.NumGC))
}

// MemoryProfile logs the memory in use after the step named label and returns the sample.
func MemoryProfile(label string) Memory {
	m := ReadMemory()
	klog.Infof("Memory profile for %s: %s", label, m)
	return m
}
