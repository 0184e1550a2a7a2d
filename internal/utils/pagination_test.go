package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-1", 7, -1},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestNewPage_Bounds(t *testing.T) {
	cases := []struct {
		number, size int
		want         Page
	}{
		{0, 0, Page{1, DefaultPageSize}},
		{-3, 5, Page{1, 5}},
		{2, 500, Page{2, MaxPageSize}},
		{4, 10, Page{4, 10}},
	}
	for _, tc := range cases {
		if got := NewPage(tc.number, tc.size); got != tc.want {
			t.Fatalf("NewPage(%d,%d) = %+v; want %+v", tc.number, tc.size, got, tc.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	if got := ParsePage("", ""); got != (Page{1, DefaultPageSize}) {
		t.Fatalf("defaults: %+v", got)
	}
	if got := ParsePage("3", "abc"); got != (Page{3, DefaultPageSize}) {
		t.Fatalf("bad size: %+v", got)
	}
	if got := ParsePage("x", "1000"); got != (Page{1, MaxPageSize}) {
		t.Fatalf("bad number, capped size: %+v", got)
	}
}

func TestPage_Window(t *testing.T) {
	p := NewPage(3, 10)
	if p.Offset() != 20 {
		t.Fatalf("offset=%d", p.Offset())
	}
	if p.TotalPages(0) != 0 || p.TotalPages(21) != 3 || p.TotalPages(30) != 3 {
		t.Fatalf("total pages: %d %d %d", p.TotalPages(0), p.TotalPages(21), p.TotalPages(30))
	}
	if p.HasNext(30) || !p.HasNext(31) {
		t.Fatalf("has next at 30=%v 31=%v", p.HasNext(30), p.HasNext(31))
	}
}
