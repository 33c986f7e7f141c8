package core

import "testing"

func TestParseTimeToNs(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{"1.5s", 1_500_000_000},
		{"250ms", 250_000_000},
		{"2", 2 * nsPerSecond},
		{2, 2 * nsPerSecond},
		{int64(3), 3 * nsPerSecond},
		{nil, 0},
	}
	for _, c := range cases {
		got, err := ParseTimeToNs(c.in)
		if err != nil {
			t.Fatalf("ParseTimeToNs(%v) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseTimeToNs(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseTimeToNsInvalid(t *testing.T) {
	if _, err := ParseTimeToNs("1.5x"); err == nil {
		t.Fatalf("expected error for invalid time string")
	}
	if _, err := ParseTimeToNs(true); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestParseMemoryToBytes(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{"256m", 256 * bytesPerMiB},
		{"1g", bytesPerGiB},
		{"500", 500},
		{500, 500},
		{"2k", 2 * bytesPerKiB},
		{nil, 0},
	}
	for _, c := range cases {
		got, err := ParseMemoryToBytes(c.in)
		if err != nil {
			t.Fatalf("ParseMemoryToBytes(%v) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseMemoryToBytes(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseMemoryToBytesInvalid(t *testing.T) {
	if _, err := ParseMemoryToBytes("5x"); err == nil {
		t.Fatalf("expected error for invalid memory string")
	}
}

func TestHumanBytes(t *testing.T) {
	if got := humanBytes(-1); got != "-1" {
		t.Errorf("humanBytes(-1) = %q, want -1", got)
	}
	if got := humanBytes(bytesPerMiB); got == "" {
		t.Errorf("humanBytes(1MiB) returned empty string")
	}
}
