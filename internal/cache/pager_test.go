package cache

import "testing"

func TestPager(t *testing.T) {
	p := NewPager(eventID)

	if p.LastPage() != 0 || p.NextPage() != 1 || !p.HasMore() {
		t.Fatalf("new pager: last=%d next=%d more=%v", p.LastPage(), p.NextPage(), p.HasMore())
	}

	p.Merge(1, 3, []event{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}})
	// page 2 overlaps page 1 because a post was inserted server-side
	p.Merge(2, 3, []event{{ID: 2, Title: "b-edited"}, {ID: 3, Title: "c"}})

	items := p.Items()
	if len(items) != 3 {
		t.Fatalf("Items() = %+v, want 3 unique", items)
	}
	if items[1].Title != "b-edited" {
		t.Errorf("duplicate not replaced in place: %+v", items[1])
	}
	if p.LastPage() != 2 || p.NextPage() != 3 || !p.HasMore() {
		t.Errorf("after 2 pages: last=%d next=%d more=%v", p.LastPage(), p.NextPage(), p.HasMore())
	}

	p.Merge(3, 3, nil)
	if p.HasMore() {
		t.Error("HasMore() = true after last page")
	}

	items[0].Title = "mutated"
	if p.Items()[0].Title != "a" {
		t.Error("Items() exposes internal slice")
	}

	p.Reset()
	if len(p.Items()) != 0 || p.LastPage() != 0 || !p.HasMore() {
		t.Errorf("Reset() left state: items=%d last=%d", len(p.Items()), p.LastPage())
	}
}
