package config

import (
	"fmt"
	"strconv"
	"strings"
)

var byteSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"KIB", 1 << 10},
	{"MIB", 1 << 20},
	{"GIB", 1 << 30},
	{"KB", 1000},
	{"MB", 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
}

// ParseByteSize parses sizes like "512", "64KB", "1MiB". Decimal (KB/MB/GB)
// and binary (KiB/MiB/GiB) suffixes are accepted, case-insensitively.
func ParseByteSize(s string) (int64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	for _, bs := range byteSuffixes {
		if strings.HasSuffix(in, bs.suffix) {
			mult = bs.mult
			in = strings.TrimSpace(strings.TrimSuffix(in, bs.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(in, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > (1<<63-1)/mult {
		return 0, fmt.Errorf("size overflow %q", s)
	}
	return n * mult, nil
}
