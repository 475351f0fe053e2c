//go:build !unix

package source

// MmapSource falls back to Go heap memory on platforms without anonymous mappings
type MmapSource struct {
	HeapSource
}

var _ Source = &MmapSource{}

func NewMmap() *MmapSource {
	return &MmapSource{}
}
