package rendercache

import (
	"io"
	"log/slog"
	"testing"

	"gocv.io/x/gocv"

	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/stage"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeBuf builds a w x h BGR buffer filled with v, so its payload is
// exactly w*h*3 bytes and its content is distinguishable by v.
func makeBuf(t *testing.T, w, h int, v float64) *imaging.Buffer {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), h, w, gocv.MatTypeCV8UC3)
	b, err := imaging.NewBuffer(m)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return b
}

func key(s stage.Stage, param, input uint64) Key {
	return Key{Stage: s, ParamHash: param, InputHash: input}
}

func TestPutGetRoundtrip(t *testing.T) {
	c := New(10<<20, quietLog())
	defer c.Clear()

	k := key(stage.Effects, 1, 1)
	if !c.Put(k, makeBuf(t, 10, 10, 40)) {
		t.Fatal("Put refused a cacheable entry")
	}

	got, ok := c.Get(k)
	if !ok {
		t.Fatal("Get missed a stored entry")
	}
	defer got.Close()
	if got.Mat().GetUCharAt(0, 0) != 40 {
		t.Fatalf("wrong content: %d", got.Mat().GetUCharAt(0, 0))
	}

	// The returned buffer is a clone: writing through it must not
	// reach the cached copy.
	m := got.Mat()
	m.SetUCharAt(0, 0, 99)
	again, ok := c.Get(k)
	if !ok {
		t.Fatal("second Get missed")
	}
	defer again.Close()
	if again.Mat().GetUCharAt(0, 0) != 40 {
		t.Fatal("cached entry was mutated through a served clone")
	}

	st := c.Stats()
	if st.Hits != 2 || st.Entries != 1 || st.UsedBytes != 300 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(10<<20, quietLog())
	if _, ok := c.Get(key(stage.Effects, 9, 9)); ok {
		t.Fatal("hit on an empty cache")
	}
	if st := c.Stats(); st.Misses != 1 {
		t.Fatalf("misses = %d, want 1", st.Misses)
	}
}

func TestPutRefusesUncacheableStage(t *testing.T) {
	c := New(10<<20, quietLog())
	for _, s := range []stage.Stage{stage.Geometry, stage.ToneBase, stage.Curves, stage.Color} {
		b := makeBuf(t, 4, 4, 0)
		if c.Put(key(s, 1, 1), b) {
			t.Errorf("Put accepted stage %v", s)
		}
		if b.Valid() {
			t.Errorf("refused buffer for stage %v left open", s)
		}
	}
	if st := c.Stats(); st.Entries != 0 {
		t.Fatalf("entries = %d, want 0", st.Entries)
	}
}

func TestPutRefusesOversize(t *testing.T) {
	c := New(500, quietLog())
	b := makeBuf(t, 20, 20, 0)
	if c.Put(key(stage.Effects, 1, 1), b) {
		t.Fatal("Put accepted a buffer larger than the ceiling")
	}
	if b.Valid() {
		t.Fatal("refused buffer left open")
	}
}

func TestPutReplacesSameKey(t *testing.T) {
	c := New(10<<20, quietLog())
	defer c.Clear()

	k := key(stage.Details, 7, 7)
	c.Put(k, makeBuf(t, 10, 10, 1))
	c.Put(k, makeBuf(t, 10, 10, 2))

	st := c.Stats()
	if st.Entries != 1 || st.UsedBytes != 300 {
		t.Fatalf("stats after replace = %+v", st)
	}
	got, ok := c.Get(k)
	if !ok {
		t.Fatal("Get missed after replace")
	}
	defer got.Close()
	if got.Mat().GetUCharAt(0, 0) != 2 {
		t.Fatal("replace kept the old content")
	}
}

func TestEvictionPrefersLowScore(t *testing.T) {
	c := New(700, quietLog())
	defer c.Clear()

	kA := key(stage.Effects, 1, 1)
	kB := key(stage.Details, 2, 2)
	c.Put(kA, makeBuf(t, 10, 10, 1))
	c.Put(kB, makeBuf(t, 10, 10, 2))

	// Five extra hits push A's frequency term past B's stage bonus.
	for i := 0; i < 5; i++ {
		got, ok := c.Get(kA)
		if !ok {
			t.Fatal("warm-up Get missed")
		}
		got.Close()
	}

	kC := key(stage.Effects, 3, 3)
	if !c.Put(kC, makeBuf(t, 10, 10, 3)) {
		t.Fatal("Put refused despite room after eviction")
	}

	if _, ok := c.Get(kB); ok {
		t.Fatal("cold entry survived eviction")
	}
	if got, ok := c.Get(kA); !ok {
		t.Fatal("hot entry was evicted")
	} else {
		got.Close()
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", st.Evictions)
	}
}

// Put may evict below the retained floor: room for a just-rendered
// buffer beats protecting colder ones.
func TestPutEvictionIgnoresFloor(t *testing.T) {
	c := New(350, quietLog())
	defer c.Clear()

	kA := key(stage.Effects, 1, 1)
	kB := key(stage.Effects, 2, 2)
	if !c.Put(kA, makeBuf(t, 10, 10, 1)) {
		t.Fatal("first Put refused")
	}
	if !c.Put(kB, makeBuf(t, 10, 10, 2)) {
		t.Fatal("second Put refused with an evictable entry present")
	}
	if st := c.Stats(); st.Entries != 1 {
		t.Fatalf("entries = %d, want 1", st.Entries)
	}
	if _, ok := c.Get(kA); ok {
		t.Fatal("evicted entry still served")
	}
	if got, ok := c.Get(kB); !ok {
		t.Fatal("new entry missing")
	} else {
		got.Close()
	}
}

func TestInvalidateFrom(t *testing.T) {
	c := New(10<<20, quietLog())
	defer c.Clear()

	kE := key(stage.Effects, 1, 1)
	kD := key(stage.Details, 2, 2)
	c.Put(kE, makeBuf(t, 10, 10, 1))
	c.Put(kD, makeBuf(t, 10, 10, 2))

	if n := c.InvalidateFrom(stage.Details); n != 1 {
		t.Fatalf("removed %d entries, want 1", n)
	}
	if _, ok := c.Get(kD); ok {
		t.Fatal("invalidated stage still served")
	}
	if got, ok := c.Get(kE); !ok {
		t.Fatal("earlier stage was invalidated")
	} else {
		got.Close()
	}

	if n := c.InvalidateFrom(stage.Geometry); n != 1 {
		t.Fatalf("removed %d entries, want 1", n)
	}
	if st := c.Stats(); st.Entries != 0 || st.UsedBytes != 0 {
		t.Fatalf("stats after full invalidation = %+v", st)
	}
}

func TestClear(t *testing.T) {
	c := New(10<<20, quietLog())
	c.Put(key(stage.Effects, 1, 1), makeBuf(t, 10, 10, 1))
	c.Put(key(stage.Details, 2, 2), makeBuf(t, 10, 10, 2))
	c.Clear()
	st := c.Stats()
	if st.Entries != 0 || st.UsedBytes != 0 {
		t.Fatalf("stats after Clear = %+v", st)
	}
}

func TestTrimToKeepsFloor(t *testing.T) {
	c := New(1000, quietLog())
	defer c.Clear()

	c.Put(key(stage.Effects, 1, 1), makeBuf(t, 10, 10, 1))
	c.Put(key(stage.Effects, 2, 2), makeBuf(t, 10, 10, 2))
	c.Put(key(stage.Details, 3, 3), makeBuf(t, 10, 10, 3))

	freed := c.TrimTo(0)
	if freed != 300 {
		t.Fatalf("freed %d bytes, want 300", freed)
	}
	if st := c.Stats(); st.Entries != minEntries {
		t.Fatalf("entries = %d, want the retained floor %d", st.Entries, minEntries)
	}
}

func TestTrimToFraction(t *testing.T) {
	c := New(1000, quietLog())
	defer c.Clear()

	c.Put(key(stage.Effects, 1, 1), makeBuf(t, 10, 10, 1))
	c.Put(key(stage.Effects, 2, 2), makeBuf(t, 10, 10, 2))
	c.Put(key(stage.Details, 3, 3), makeBuf(t, 10, 10, 3))

	c.TrimTo(0.65)
	used, _ := c.Usage()
	if used != 600 {
		t.Fatalf("used = %d after trim to 650 target, want 600", used)
	}
}

// Emergency pressure at the floor must count a purge without dropping
// below the retained minimum.
func TestEmergencyPurgeRespectsFloor(t *testing.T) {
	c := New(1000, quietLog())
	defer c.Clear()

	c.Put(key(stage.Effects, 1, 1), makeBuf(t, 15, 11, 1)) // 495 bytes
	c.Put(key(stage.Details, 2, 2), makeBuf(t, 163, 1, 2)) // 489 bytes

	st := c.Stats()
	if st.Purges != 1 {
		t.Fatalf("purges = %d, want 1", st.Purges)
	}
	if st.Entries != 2 {
		t.Fatalf("entries = %d, emergency purge went below the floor", st.Entries)
	}
}

func TestGetPurgesCorruptEntry(t *testing.T) {
	c := New(10<<20, quietLog())
	k := key(stage.Effects, 5, 5)
	c.Put(k, makeBuf(t, 10, 10, 1))

	c.mu.Lock()
	c.entries[k].buf.Close()
	c.mu.Unlock()

	if _, ok := c.Get(k); ok {
		t.Fatal("corrupt entry was served")
	}
	st := c.Stats()
	if st.Entries != 0 {
		t.Fatal("corrupt entry not purged")
	}
	if st.Misses != 1 {
		t.Fatalf("misses = %d, want 1", st.Misses)
	}
}

func TestUsageAndDefaultLimit(t *testing.T) {
	c := New(0, nil)
	if _, limit := c.Usage(); limit != DefaultLimit {
		t.Fatalf("limit = %d, want DefaultLimit", limit)
	}
}

func BenchmarkPutGet(b *testing.B) {
	c := New(64<<20, quietLog())
	defer c.Clear()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), 64, 64, gocv.MatTypeCV8UC3)
	src, err := imaging.NewBuffer(m)
	if err != nil {
		b.Fatal(err)
	}
	defer src.Close()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		k := key(stage.Effects, uint64(i%8), 1)
		c.Put(k, src.Clone())
		if got, ok := c.Get(k); ok {
			got.Close()
		}
	}
}
