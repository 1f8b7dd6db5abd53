package config

import "testing"

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"4KB", 4000},
		{"1MB", 1000 * 1000},
		{"2GiB", 2 << 30},
		{"64kib", 64 << 10},
		{" 10 MB ", 10 * 1000 * 1000},
		{"0", 0},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "MB", "-1KB", "lots", "1.5MB"} {
		if _, err := ParseByteSize(in); err == nil {
			t.Fatalf("ParseByteSize(%q): expected error", in)
		}
	}
}
