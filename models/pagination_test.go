package models

import (
	"math"
	"testing"
)

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}
	cases := []struct {
		page, perPage int
		want          []int
		hasNext       bool
	}{
		{1, 2, []int{1, 2}, true},
		{3, 2, []int{5}, false},
		{4, 2, []int{}, false},
		{0, 0, []int{1, 2, 3, 4, 5}, false},
	}
	for _, tc := range cases {
		p := Paginate(all, tc.page, tc.perPage)
		if len(p.Items) != len(tc.want) {
			t.Fatalf("page %d/%d: expected %v, got %v", tc.page, tc.perPage, tc.want, p.Items)
		}
		for i := range tc.want {
			if p.Items[i] != tc.want[i] {
				t.Fatalf("page %d/%d: expected %v, got %v", tc.page, tc.perPage, tc.want, p.Items)
			}
		}
		if p.HasNextPage != tc.hasNext || p.Total != 5 {
			t.Fatalf("page %d/%d: unexpected meta %+v", tc.page, tc.perPage, p)
		}
	}
}

func TestNormalizePagingCapsPerPage(t *testing.T) {
	page, perPage := NormalizePaging(-3, 10000)
	if page != 1 || perPage != MaxPerPage {
		t.Fatalf("expected 1/%d, got %d/%d", MaxPerPage, page, perPage)
	}
}

func TestPaginateHugePageIsEmpty(t *testing.T) {
	for _, page := range []int{math.MaxInt/50 + 2, math.MaxInt} {
		p := Paginate([]int{1, 2, 3}, page, 50)
		if len(p.Items) != 0 || p.HasNextPage || p.Total != 3 {
			t.Fatalf("page %d: unexpected page %+v", page, p)
		}
		normalized, perPage := NormalizePaging(page, 50)
		if off := Offset(normalized, perPage); off < 0 {
			t.Fatalf("page %d: negative offset %d", page, off)
		}
	}
}
