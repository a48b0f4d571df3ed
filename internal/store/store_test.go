package store

import (
	"testing"

	"github.com/corvidchess/corvid/internal/board"
	"github.com/corvidchess/corvid/internal/tablebase"
)

func TestTablebaseCacheMiss(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, found, err := s.GetTablebase(12345); err != nil {
		t.Fatalf("GetTablebase: %v", err)
	} else if found {
		t.Error("expected cache miss on empty store")
	}
}

func TestTablebasePutGet(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	want := tablebase.ProbeResult{Found: true, WDL: tablebase.WDLWin, DTZ: 12}
	if err := s.PutTablebase(0xdeadbeef, want); err != nil {
		t.Fatalf("PutTablebase: %v", err)
	}

	got, found, err := s.GetTablebase(0xdeadbeef)
	if err != nil {
		t.Fatalf("GetTablebase: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit after put")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

type onceProber struct {
	calls  int
	result tablebase.ProbeResult
}

func (p *onceProber) Probe(pos *board.Position) tablebase.ProbeResult {
	p.calls++
	return p.result
}

func (p *onceProber) ProbeRoot(pos *board.Position) tablebase.RootResult {
	return tablebase.RootResult{}
}

func (p *onceProber) MaxPieces() int { return 6 }
func (p *onceProber) Available() bool { return true }

func TestDiskCachedProberAvoidsRepeatedCalls(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	inner := &onceProber{result: tablebase.ProbeResult{Found: true, WDL: tablebase.WDLDraw}}
	cached := NewDiskCachedProber(inner, s)

	pos := board.NewPosition()
	first := cached.Probe(pos)
	second := cached.Probe(pos)

	if first != second {
		t.Errorf("cached results differ: %+v vs %+v", first, second)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner prober to be called once, got %d", inner.calls)
	}
}
