package memio

import "testing"

func TestIndexZero(t *testing.T) {
	cases := []struct {
		in   []byte
		want int
	}{
		{[]byte("hello\x00world"), 5},
		{[]byte("no-nul-here"), -1},
		{[]byte{}, -1},
		{[]byte{0}, 0},
	}
	for _, c := range cases {
		if got := indexZero(c.in); got != c.want {
			t.Errorf("indexZero(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
