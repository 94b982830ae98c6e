package netstack

import "testing"

func TestMulticastTableJoinReportsChanged(t *testing.T) {
	tbl := NewMulticastTable(2)
	a := [4]byte{224, 0, 0, 5}

	changed, err := tbl.Join(a)
	if err != nil || !changed {
		t.Fatalf("Join(a) = (%v, %v), want (true, nil)", changed, err)
	}
	if !tbl.Contains(a) {
		t.Error("Contains(a) = false after Join")
	}

	changed, err = tbl.Join(a)
	if err != nil || changed {
		t.Fatalf("re-Join(a) = (%v, %v), want (false, nil)", changed, err)
	}
}

// P6: joining a group at capacity fails with GroupTableFull and leaves the
// table unchanged, but re-joining an already-present group always succeeds
// regardless of capacity.
func TestMulticastTableJoinAtCapacity(t *testing.T) {
	tbl := NewMulticastTable(1)
	first := [4]byte{224, 0, 0, 1}
	second := [4]byte{224, 0, 0, 2}

	if changed, err := tbl.Join(first); err != nil || !changed {
		t.Fatalf("Join(first) = (%v, %v), want (true, nil)", changed, err)
	}

	changed, err := tbl.Join(second)
	if changed {
		t.Error("Join(second) at capacity should report changed=false")
	}
	if !IsCode(err, ErrCodeGroupTableFull) {
		t.Errorf("Join(second) at capacity err = %v, want ErrCodeGroupTableFull", err)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d after rejected join, want 1", tbl.Len())
	}

	if changed, err := tbl.Join(first); err != nil || changed {
		t.Errorf("re-Join(first) at capacity = (%v, %v), want (false, nil)", changed, err)
	}
}

func TestMulticastTableLeave(t *testing.T) {
	tbl := NewMulticastTable(4)
	a := [4]byte{224, 0, 0, 9}

	if changed := tbl.Leave(a); changed {
		t.Error("Leave on a never-joined group should report changed=false")
	}

	tbl.Join(a)
	if changed := tbl.Leave(a); !changed {
		t.Error("Leave on a joined group should report changed=true")
	}
	if tbl.Contains(a) {
		t.Error("Contains(a) should be false after Leave")
	}
}

func TestMulticastTableAtPreservesInsertionOrder(t *testing.T) {
	tbl := NewMulticastTable(4)
	addrs := [][4]byte{{224, 0, 0, 1}, {224, 0, 0, 2}, {224, 0, 0, 3}}
	for _, a := range addrs {
		if _, err := tbl.Join(a); err != nil {
			t.Fatalf("Join(%v): %v", a, err)
		}
	}
	for i, want := range addrs {
		got, ok := tbl.At(i)
		if !ok || got != want {
			t.Errorf("At(%d) = (%v, %v), want (%v, true)", i, got, ok, want)
		}
	}
	if _, ok := tbl.At(len(addrs)); ok {
		t.Error("At(len) should report ok=false")
	}
}
