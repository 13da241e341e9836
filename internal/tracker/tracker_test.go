package tracker

import (
	"testing"
	"time"
)

func TestNew_NormalizesWatchSet(t *testing.T) {
	tr := New([]string{" Blender.EXE ", "ffmpeg", "blender.exe", "", "  "})
	got := tr.Watch()
	want := []string{"blender.exe", "ffmpeg"}
	if len(got) != len(want) {
		t.Fatalf("watch set = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("watch set = %v, want %v", got, want)
		}
	}
}

func TestUpdate_MatchIsCaseInsensitiveSubstring(t *testing.T) {
	base := time.Now()
	cases := []struct {
		watch  string
		sample []string
		alive  bool
	}{
		{"blender", []string{"systemd", "blender.exe"}, true},
		{"blender", []string{"Blender.exe"}, true},
		{"a.exe", []string{"A.EXE"}, true},
		{"ffmpeg", []string{"ffmpeg"}, true},
		{"notepad", []string{"systemd", "bash"}, false},
		{"blender", nil, false},
	}
	for _, c := range cases {
		tr := New([]string{c.watch})
		tr.Update(c.sample, base)
		if tr.AnyAlive() != c.alive {
			t.Fatalf("watch %q sample %v: AnyAlive=%t, want %t", c.watch, c.sample, tr.AnyAlive(), c.alive)
		}
	}
}

// Idle time is measured from the last alive observation, so a process seen
// at t=0 and absent from t=10 on has been idle 30s at t=30.
func TestIdleMeasuredFromLastAliveSample(t *testing.T) {
	base := time.Now()
	tr := New([]string{"a.exe"})

	tr.Update([]string{"a.exe"}, base)
	if tr.Idle() {
		t.Fatalf("idle while process alive")
	}
	if d := tr.IdleFor(base); d != 0 {
		t.Fatalf("IdleFor = %v while alive", d)
	}

	tr.Update(nil, base.Add(10*time.Second))
	if !tr.Idle() {
		t.Fatalf("not idle after all-absent sample")
	}
	since, ok := tr.IdleSince()
	if !ok || !since.Equal(base) {
		t.Fatalf("IdleSince = %v ok=%t, want last alive time %v", since, ok, base)
	}
	tr.Update(nil, base.Add(20*time.Second))
	if d := tr.IdleFor(base.Add(30 * time.Second)); d != 30*time.Second {
		t.Fatalf("IdleFor = %v, want 30s measured from last alive sample", d)
	}
}

// A run in which the watched process is never observed counts idle time
// from the first sample.
func TestIdleWhenNeverObserved(t *testing.T) {
	base := time.Now()
	tr := New([]string{"a.exe"})
	tr.Update(nil, base)
	if !tr.Idle() {
		t.Fatalf("expected idle from first absent sample")
	}
	if d := tr.IdleFor(base.Add(time.Minute)); d != time.Minute {
		t.Fatalf("IdleFor = %v, want 1m from run start", d)
	}
}

func TestUpdate_ReappearanceResetsIdle(t *testing.T) {
	base := time.Now()
	tr := New([]string{"a.exe"})

	tr.Update(nil, base)
	if !tr.Idle() {
		t.Fatalf("expected idle")
	}
	tr.Update([]string{"worker", "a.exe"}, base.Add(50*time.Second))
	if tr.Idle() {
		t.Fatalf("reappearance must clear idle")
	}
	if d := tr.IdleFor(base.Add(50 * time.Second)); d != 0 {
		t.Fatalf("IdleFor = %v after reappearance", d)
	}
}

// A process that flaps must never accumulate idle time across gaps: the
// second gap is measured from the reappearance, not from the first gap.
func TestUpdate_FlappingNeverAccumulates(t *testing.T) {
	base := time.Now()
	tick := 10 * time.Second
	tr := New([]string{"a.exe"})

	tr.Update([]string{"a.exe"}, base)
	// Gap one: ticks 1..5 absent, 50s idle by tick 5.
	for i := 1; i <= 5; i++ {
		tr.Update(nil, base.Add(time.Duration(i)*tick))
	}
	if d := tr.IdleFor(base.Add(5 * tick)); d != 50*time.Second {
		t.Fatalf("first gap IdleFor = %v, want 50s", d)
	}

	// Reappearance at tick 6.
	tr.Update([]string{"a.exe"}, base.Add(6*tick))

	// Gap two: ticks 7..8.
	tr.Update(nil, base.Add(7*tick))
	tr.Update(nil, base.Add(8*tick))
	if d := tr.IdleFor(base.Add(8 * tick)); d != 2*tick {
		t.Fatalf("second gap IdleFor = %v, want %v (no carry-over)", d, 2*tick)
	}
}

func TestLastSeen(t *testing.T) {
	base := time.Now()
	tr := New([]string{"a.exe", "b.exe"})

	if _, ok := tr.LastSeen("a.exe"); ok {
		t.Fatalf("LastSeen before any sample")
	}
	tr.Update([]string{"a.exe"}, base)
	ts, ok := tr.LastSeen("A.exe")
	if !ok || !ts.Equal(base) {
		t.Fatalf("LastSeen = %v ok=%t, want %v", ts, ok, base)
	}
	if _, ok := tr.LastSeen("b.exe"); ok {
		t.Fatalf("b.exe never matched but LastSeen reports it")
	}
}

func TestClearIdle(t *testing.T) {
	base := time.Now()
	tr := New([]string{"a.exe"})
	tr.Update([]string{"a.exe"}, base)
	tr.Update(nil, base.Add(10*time.Second))
	if !tr.Idle() {
		t.Fatalf("expected idle before clear")
	}
	tr.ClearIdle()
	if tr.Idle() {
		t.Fatalf("idle survived ClearIdle")
	}
	// The next absent sample starts a fresh span from its own time.
	resume := base.Add(10 * time.Minute)
	tr.Update(nil, resume)
	if d := tr.IdleFor(resume.Add(30 * time.Second)); d != 30*time.Second {
		t.Fatalf("IdleFor after clear = %v, want 30s", d)
	}
}

func TestWatch_ReturnsCopy(t *testing.T) {
	tr := New([]string{"a.exe"})
	w := tr.Watch()
	w[0] = "tampered"
	if tr.Watch()[0] != "a.exe" {
		t.Fatalf("Watch exposed internal slice")
	}
}
