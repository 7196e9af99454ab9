package gc

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orizon-lang/cyclegc/internal/rt"
)

func TestScaleFromEnv(t *testing.T) {
	t.Setenv(ScaleEnv, "")
	if n, err := scaleFromEnv(); err != nil || n != defaultScale {
		t.Fatalf("unset: %d, %v", n, err)
	}
	t.Setenv(ScaleEnv, "250")
	if n, err := scaleFromEnv(); err != nil || n != 250 {
		t.Fatalf("250: %d, %v", n, err)
	}
	t.Setenv(ScaleEnv, "junk")
	if n, err := scaleFromEnv(); err == nil || n != defaultScale {
		t.Fatal("malformed value must fall back with an error")
	}
	t.Setenv(ScaleEnv, "-1")
	if _, err := scaleFromEnv(); err == nil {
		t.Fatal("negative value must be rejected")
	}
}

func TestThresholdFormula(t *testing.T) {
	c, _ := newTestCollector(t)

	c.live.Store(6000)
	c.updateThreshold()
	if got := c.GetThreshold()[0]; got != defaultThreshold {
		t.Fatalf("threshold = %d, want the %d floor", got, defaultThreshold)
	}

	c.live.Store(10000)
	c.updateThreshold()
	if got := c.GetThreshold()[0]; got != 20000 {
		t.Fatalf("threshold = %d, want 20000 at scale 100", got)
	}

	c.SetScale(50)
	c.updateThreshold()
	if got := c.GetThreshold()[0]; got != 15000 {
		t.Fatalf("threshold = %d, want 15000 at scale 50", got)
	}
	c.live.Store(0)
}

func TestMaybeCollectTriggers(t *testing.T) {
	c, th := newTestCollector(t)

	a := newNode(c, th)
	b := newNode(c, th, a)
	link(th, a, b)
	th.Decref(a)
	th.Decref(b)

	c.SetThreshold(1)
	collected, _ := c.MaybeCollect()
	if collected != 2 {
		t.Fatalf("collected = %d, want cycle reclaimed on trigger", collected)
	}
	// Post-collection threshold is back at the floor, below it no trigger.
	if got, _ := c.MaybeCollect(); got != 0 {
		t.Fatal("trigger must not refire below the threshold")
	}
}

func TestPacingWatcherReloadsScale(t *testing.T) {
	r := rt.NewRuntime()
	c := New(r)
	c.SetDiag(io.Discard)

	dir := t.TempDir()
	path := filepath.Join(dir, "pacing.conf")
	if err := os.WriteFile(path, []byte("# heap growth percent\n150\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pw, err := c.WatchPacing(path)
	if err != nil {
		t.Fatal(err)
	}
	defer pw.Close()

	if c.Scale() != 150 {
		t.Fatalf("scale = %d, want initial file value 150", c.Scale())
	}

	if err := os.WriteFile(path, []byte("75\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for c.Scale() != 75 {
		if time.Now().After(deadline) {
			t.Fatalf("scale = %d, want 75 after rewrite", c.Scale())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Malformed updates leave the last good value in place.
	if err := os.WriteFile(path, []byte("not a number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if c.Scale() != 75 {
		t.Fatalf("scale = %d, malformed file must not change it", c.Scale())
	}
}
