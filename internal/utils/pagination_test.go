package utils

import "testing"

func TestParsePage(t *testing.T) {
	cases := []struct {
		s    string
		want int
	}{
		{"", 1},
		{"3", 3},
		{" 7 ", 7},
		{"0012", 12},
		{"0", 1},
		{"-2", 1},
		{"x", 1},
		{"999999", MaxPage},
		{"999999999999999999999999", 1}, // overflow
	}
	for _, tc := range cases {
		if got := ParsePage(tc.s); got != tc.want {
			t.Fatalf("ParsePage(%q) = %d; want %d", tc.s, got, tc.want)
		}
	}
}

func TestPageQuery(t *testing.T) {
	cases := []struct {
		page, size int
		want       string
	}{
		{3, 20, "page=3&size=20"},
		{0, 0, "page=1&size=1"},
		{-4, 500, "page=1&size=100"},
	}
	for _, tc := range cases {
		if got := PageQuery(tc.page, tc.size).Encode(); got != tc.want {
			t.Fatalf("PageQuery(%d, %d) = %q; want %q", tc.page, tc.size, got, tc.want)
		}
	}
}
