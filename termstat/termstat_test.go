package termstat_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sparkify/lake"
	"github.com/sparkify/lake/termstat"
)

var _ lake.Statter = termstat.NewCollector()

func TestCollector(t *testing.T) {
	c := termstat.NewCollector()
	c.Count("rows.songs", 3, 1)
	c.Count("rows.songs", 2, 1)
	c.Count("rows.users", 7, 1)
	c.Timing("stage.process_song_data", 1500*time.Millisecond, 1)
	c.Timing("stage.process_song_data", 500*time.Millisecond, 1)
	c.Gauge("files", 4, 1)

	counts := c.Counts()
	if counts["rows.songs"] != 5 || counts["rows.users"] != 7 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if _, ok := counts["files"]; ok {
		t.Fatalf("gauge reported as a count: %v", counts)
	}

	buf := &bytes.Buffer{}
	if err := c.Summary(buf); err != nil {
		t.Fatalf("writing summary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"rows.songs", "5", "rows.users", "2s", "stage.process_song_data"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "rows.songs") > strings.Index(out, "stage.process_song_data") {
		t.Errorf("summary not sorted by name:\n%s", out)
	}
}

func TestCollectorSampling(t *testing.T) {
	c := termstat.NewCollector()
	for i := 0; i < 100; i++ {
		c.Count("never", 1, 0)
	}
	if n := c.Counts()["never"]; n > 5 {
		t.Fatalf("rate 0 should drop nearly every sample, kept %d", n)
	}
}

func TestRenderTableEmpty(t *testing.T) {
	if s := termstat.RenderTable(nil, nil, nil); s != "" {
		t.Fatalf("expected empty render, got %q", s)
	}
}
