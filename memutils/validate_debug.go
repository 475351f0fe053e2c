//go:build debug_mem_utils

package memutils

import "unsafe"

const (
	// DebugMargin is the number of bytes of guard data placed after each object header in memory
	// managed by memcore
	DebugMargin int = 16
	// corruptionDetectionMagicValue is the 4-byte pattern repeated across a guard region
	corruptionDetectionMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue writes a guard pattern across DebugMargin bytes at the provided pointer and offset.
// This method no-ops unless the debug_mem_utils build tag is present.
func WriteMagicValue(data unsafe.Pointer, offset int) {
	dest := unsafe.Add(data, offset)
	for i := 0; i < DebugMargin/4; i++ {
		*(*uint32)(dest) = corruptionDetectionMagicValue
		dest = unsafe.Add(dest, 4)
	}
}

// ValidateMagicValue verifies that the guard pattern written by WriteMagicValue is still present.
// This method no-ops unless the debug_mem_utils build tag is present.
func ValidateMagicValue(data unsafe.Pointer, offset int) bool {
	source := unsafe.Add(data, offset)
	for i := 0; i < DebugMargin/4; i++ {
		if *(*uint32)(source) != corruptionDetectionMagicValue {
			return false
		}
		source = unsafe.Add(source, 4)
	}

	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
