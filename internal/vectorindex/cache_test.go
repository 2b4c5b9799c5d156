package vectorindex

import "testing"

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU(2)
	a, b, d := &index{slug: "a"}, &index{slug: "b"}, &index{slug: "d"}
	c.put("a", a)
	c.put("b", b)
	if _, ok := c.get("a"); !ok { // a becomes most recent
		t.Fatalf("a should be cached")
	}
	c.put("d", d)
	if _, ok := c.get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if got, ok := c.get("a"); !ok || got != a {
		t.Fatalf("a should survive")
	}
	if c.len() != 2 {
		t.Fatalf("len = %d", c.len())
	}

	a2 := &index{slug: "a", version: "v2"}
	c.put("a", a2)
	if got, _ := c.get("a"); got != a2 || c.len() != 2 {
		t.Fatalf("put should replace in place")
	}

	c.remove("a")
	c.remove("zzz")
	if _, ok := c.get("a"); ok || c.len() != 1 {
		t.Fatalf("remove failed")
	}
	c.clear()
	if c.len() != 0 {
		t.Fatalf("clear failed")
	}
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := newLRU(0)
	c.put("a", &index{})
	c.put("b", &index{})
	if c.len() != 1 {
		t.Fatalf("capacity should clamp to 1, len=%d", c.len())
	}
}
