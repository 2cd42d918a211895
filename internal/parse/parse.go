// Package parse implements the decimal-integer and CLI-argument parsing
// helpers of the original mini_kvm (core/core.c's is_uint/to_uint/
// parse_int_list/parse_cpu_list, and commands/run.c's parse_mem).
package parse

import (
	"fmt"
	"strings"

	"github.com/julienflot/mini-kvm/internal/container"
)

// MaxVCPUs bounds the vCPU bitmask accepted by ParseCPUList, matching
// MINI_KVM_MAX_VCPUS in the original's core/constants.h.
const MaxVCPUs = 64

// IsUint reports whether every byte of the first n bytes of s is an ASCII
// digit. An empty prefix (n == 0, or s empty) is considered valid.
func IsUint(s string, n int) bool {
	if len(s) == 0 || n == 0 {
		return true
	}

	if n > len(s) {
		n = len(s)
	}

	for i := 0; i < n; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// ToUint decimal-parses the first n bytes of s into a uint64. It fails on
// a non-digit byte or on overflow past 2^64-1.
func ToUint(s string, n int) (uint64, error) {
	if !IsUint(s, n) {
		return 0, fmt.Errorf("parse: %q is not a decimal integer", s)
	}

	if n > len(s) {
		n = len(s)
	}

	var value uint64

	for i := 0; i < n; i++ {
		digit := uint64(s[i] - '0')

		if value > (^uint64(0)-digit)/10 { // value*10 + digit would pass 2^64-1
			return 0, fmt.Errorf("parse: %q overflows uint64", s[:n])
		}

		value = value*10 + digit
	}

	return value, nil
}

// ParseIntList parses a comma-separated list of decimal integers, e.g.
// "0,2,3", into an ordered sequence of uint64 values.
func ParseIntList(s string) (*container.Vec[uint64], error) {
	list := container.NewVec[uint64]()

	if s == "" {
		return list, nil
	}

	for _, field := range strings.Split(s, ",") {
		if !IsUint(field, len(field)) || field == "" {
			return nil, fmt.Errorf("parse: malformed integer list %q", s)
		}

		value, err := ToUint(field, len(field))
		if err != nil {
			return nil, fmt.Errorf("parse: malformed integer list %q: %w", s, err)
		}

		list.Append(value)
	}

	return list, nil
}

// ParseCPUList folds a comma-separated list of vCPU indices into a 64-bit
// mask (mask |= 1 << v for each value v). Per spec §9's redesign note, a
// value >= MaxVCPUs is rejected rather than silently wrapped into the mask.
func ParseCPUList(s string) (uint64, error) {
	var mask uint64

	if s == "" {
		return 0, nil
	}

	list, err := ParseIntList(s)
	if err != nil {
		return 0, err
	}

	for i := 0; i < list.Len(); i++ {
		v := list.At(i)
		if v >= MaxVCPUs {
			return 0, fmt.Errorf("parse: vcpu index %d out of range [0,%d)", v, MaxVCPUs)
		}

		mask |= 1 << v
	}

	return mask, nil
}

// ParseMem reads an optional trailing K/M/G suffix (scale 10^3/10^6/10^9)
// off s and multiplies the decimal prefix by that scale.
func ParseMem(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("parse: empty memory size")
	}

	scale := uint64(1)
	prefix := s

	switch s[len(s)-1] {
	case 'K':
		scale = 1_000
		prefix = s[:len(s)-1]
	case 'M':
		scale = 1_000_000
		prefix = s[:len(s)-1]
	case 'G':
		scale = 1_000_000_000
		prefix = s[:len(s)-1]
	}

	if !IsUint(prefix, len(prefix)) || prefix == "" {
		return 0, fmt.Errorf("parse: malformed memory size %q", s)
	}

	value, err := ToUint(prefix, len(prefix))
	if err != nil {
		return 0, fmt.Errorf("parse: malformed memory size %q: %w", s, err)
	}

	return value * scale, nil
}
