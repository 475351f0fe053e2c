package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// IsPow2 returns true if number is a nonzero power of two
func IsPow2[T Number](number T) bool {
	return number != 0 && number&(number-1) == 0
}

// NextPow2 rounds value up to the nearest power of two. Values that are already a power of two
// are returned unchanged.
func NextPow2(value int) int {
	if value <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(value-1))
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// AlignUpAny rounds value up to the next multiple of alignment. Unlike AlignUp, alignment does not
// need to be a power of two.
func AlignUpAny(value uintptr, alignment uintptr) uintptr {
	if remainder := value % alignment; remainder != 0 {
		return value + alignment - remainder
	}
	return value
}

// AlignAddress rounds an address up to alignment, taking the bit-mask path when alignment is a power of two
func AlignAddress(addr uintptr, alignment uint) uintptr {
	if IsPow2(alignment) {
		mask := uintptr(alignment) - 1
		return (addr + mask) &^ mask
	}
	return AlignUpAny(addr, uintptr(alignment))
}
