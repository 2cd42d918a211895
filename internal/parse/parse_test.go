package parse_test

import (
	"testing"

	"github.com/julienflot/mini-kvm/internal/parse"
)

func TestIsUint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		s    string
		n    int
		want bool
	}{
		{"1234", 4, true},
		{"12a4", 4, false},
		{"", 0, true},
		{"", 5, true},
		{"42", 1, true},
	}

	for _, c := range cases {
		if got := parse.IsUint(c.s, c.n); got != c.want {
			t.Errorf("IsUint(%q, %d) = %v, want %v", c.s, c.n, got, c.want)
		}
	}
}

func TestToUintRoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []uint64{0, 1, 42, 9223372036854775807} {
		text := uintToText(v)

		got, err := parse.ToUint(text, len(text))
		if err != nil {
			t.Fatalf("ToUint(%q): %v", text, err)
		}

		if got != v {
			t.Errorf("ToUint(%q) = %d, want %d", text, got, v)
		}
	}
}

func uintToText(v uint64) string {
	if v == 0 {
		return "0"
	}

	var buf [20]byte

	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}

	return string(buf[i:])
}

func TestToUintRejectsNonDigit(t *testing.T) {
	t.Parallel()

	if _, err := parse.ToUint("12x4", 4); err == nil {
		t.Fatal("ToUint(\"12x4\") succeeded, want error")
	}
}

func TestParseMemScaling(t *testing.T) {
	t.Parallel()

	cases := map[string]uint64{
		"10K": 10_000,
		"10M": 10_000_000,
		"10G": 10_000_000_000,
		"10":  10,
	}

	for input, want := range cases {
		got, err := parse.ParseMem(input)
		if err != nil {
			t.Fatalf("ParseMem(%q): %v", input, err)
		}

		if got != want {
			t.Errorf("ParseMem(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseMemRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "K", "12x", "-5"} {
		if _, err := parse.ParseMem(input); err == nil {
			t.Errorf("ParseMem(%q) succeeded, want error", input)
		}
	}
}

func TestParseCPUListMask(t *testing.T) {
	t.Parallel()

	mask, err := parse.ParseCPUList("0,2,3")
	if err != nil {
		t.Fatalf("ParseCPUList: %v", err)
	}

	const want = 0b1101
	if mask != want {
		t.Errorf("ParseCPUList(\"0,2,3\") = %#b, want %#b", mask, want)
	}
}

func TestParseCPUListRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := parse.ParseCPUList("0,64"); err == nil {
		t.Fatal("ParseCPUList(\"0,64\") succeeded, want error for out-of-range index")
	}
}

func TestParseCPUListEmpty(t *testing.T) {
	t.Parallel()

	mask, err := parse.ParseCPUList("")
	if err != nil {
		t.Fatalf("ParseCPUList(\"\"): %v", err)
	}

	if mask != 0 {
		t.Errorf("ParseCPUList(\"\") = %#b, want 0", mask)
	}
}

func TestParseIntListRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"1,,2", "1,a,2", ",1", "1,"} {
		if _, err := parse.ParseIntList(input); err == nil {
			t.Errorf("ParseIntList(%q) succeeded, want error", input)
		}
	}
}
