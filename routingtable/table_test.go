package routingtable

import "testing"

func TestMemTableLookupByIDAndAddr(t *testing.T) {
	tbl := NewMemTable()
	c := Contact{
		KademliaID:     "peer-1",
		HostIP:         "198.51.100.7",
		HostPort:       9000,
		RendezvousIP:   "198.51.100.1",
		RendezvousPort: 7000,
		PublicKey:      []byte{1, 2, 3},
	}
	tbl.Put(c)

	got, ok := tbl.Lookup("peer-1")
	if !ok || got.HostPort != 9000 {
		t.Fatalf("Lookup by id failed: %+v, ok=%v", got, ok)
	}

	got, ok = tbl.LookupByAddr("198.51.100.7", 9000)
	if !ok || got.KademliaID != "peer-1" {
		t.Fatalf("LookupByAddr failed: %+v, ok=%v", got, ok)
	}

	if _, ok := tbl.Lookup("nope"); ok {
		t.Fatal("expected lookup of unknown id to miss")
	}
}

func TestMemTableRemove(t *testing.T) {
	tbl := NewMemTable()
	tbl.Put(Contact{KademliaID: "peer-2", HostIP: "10.0.0.5", HostPort: 1234})
	tbl.Remove("peer-2")

	if _, ok := tbl.Lookup("peer-2"); ok {
		t.Fatal("expected contact to be removed")
	}
	if _, ok := tbl.LookupByAddr("10.0.0.5", 1234); ok {
		t.Fatal("expected addr index to be cleaned up on remove")
	}
}
