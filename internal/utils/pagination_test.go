package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 7, 7},
		{"42", 7, 42},
		{"-3", 7, -3},
		{"abc", 7, 7},
		{"4.2", 7, 7},
		{" 5", 7, 7}, // strconv.Atoi does not trim
	}
	for _, c := range cases {
		if got := AtoiDefault(c.in, c.def); got != c.want {
			t.Fatalf("AtoiDefault(%q,%d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}
