package vm

import (
	"fmt"
	"io"
)

// DumpMemory writes a formatted hex dump of guest memory in [start,end)
// to w, grouped into words of wordSize bytes, bytesPerLine bytes per
// line, per spec §8 property 8 and original mini_kvm's debug.c dump
// routine. end == -1 means MemSize.
func (v *VM) DumpMemory(w io.Writer, start, end int64, wordSize, bytesPerLine int) error {
	if end == -1 {
		end = int64(v.MemSize)
	}

	if start < 0 || end < start || uint64(end) > v.MemSize {
		return fmt.Errorf("vm: memory range [%d,%d) out of bounds for %d byte region", start, end, v.MemSize)
	}

	if wordSize <= 0 || bytesPerLine <= 0 || bytesPerLine%wordSize != 0 {
		return fmt.Errorf("vm: invalid word_size/bytes_per_line (%d/%d)", wordSize, bytesPerLine)
	}

	if _, err := fmt.Fprintf(w, "mem dump: @%d -> @%d\n", start, end); err != nil {
		return err
	}

	wordsPerLine := bytesPerLine / wordSize

	for addr := start; addr < end; addr += int64(bytesPerLine) {
		if _, err := fmt.Fprintf(w, "%08x", addr); err != nil {
			return err
		}

		for word := 0; word < wordsPerLine; word++ {
			wordStart := addr + int64(word*wordSize)
			if wordStart >= end {
				break
			}

			wordEnd := wordStart + int64(wordSize)
			if wordEnd > end {
				wordEnd = end
			}

			if _, err := fmt.Fprintf(w, " %x", v.Mem[wordStart:wordEnd]); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	return nil
}
