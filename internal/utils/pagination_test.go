package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		page, size              int
		wantPage, wantSize, off int
	}{
		{0, 0, 1, 20, 0},
		{-3, 5, 1, 5, 0},
		{3, 10, 3, 10, 20},
		{2, 500, 2, 100, 100},
	}
	for _, tc := range cases {
		p, s, o := Paginate(tc.page, tc.size, 20, 100)
		if p != tc.wantPage || s != tc.wantSize || o != tc.off {
			t.Fatalf("Paginate(%d,%d) = %d,%d,%d", tc.page, tc.size, p, s, o)
		}
	}
	if _, s, _ := Paginate(1, 0, 0, 0); s != 1 {
		t.Fatalf("size should never drop below 1, got %d", s)
	}
}

func TestTotalPages(t *testing.T) {
	for _, tc := range []struct {
		total int64
		size  int
		want  int
	}{{0, 10, 0}, {1, 10, 1}, {10, 10, 1}, {11, 10, 2}, {5, 0, 0}} {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d) = %d, want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
