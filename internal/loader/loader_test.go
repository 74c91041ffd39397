package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseCookiesRoundTrip(t *testing.T) {
	in := []Cookie{{Name: "sid", Value: "abc", MaxAge: 3600}, {Name: "theme", Value: "dark", MaxAge: -1}}
	wire := "sid\tabc\t3600\ntheme\tdark\t-1"
	got := ParseCookies(wire)
	if len(got) != len(in) {
		t.Fatalf("got %d cookies, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("cookie %d: got %+v, want %+v", i, got[i], in[i])
		}
	}
}

func TestParseCookiesEmpty(t *testing.T) {
	if got := ParseCookies(""); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestParseCookiesBadMaxAgeDefaultsToZero(t *testing.T) {
	got := ParseCookies("sid\tabc\tnotanumber")
	if len(got) != 1 || got[0].MaxAge != 0 {
		t.Errorf("expected max_age 0 on parse failure, got %+v", got)
	}
}

func TestParseHeadersRoundTrip(t *testing.T) {
	wire := "x-request-id:abc123\ncontent-language:en-US"
	got := ParseHeaders(wire)
	want := []Header{{Name: "x-request-id", Value: "abc123"}, {Name: "content-language", Value: "en-US"}}
	if len(got) != len(want) {
		t.Fatalf("got %d headers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseHeadersSkipsMalformedLines(t *testing.T) {
	got := ParseHeaders("no-colon-here\nx:y")
	if len(got) != 1 || got[0].Name != "x" {
		t.Errorf("expected only the well-formed line, got %+v", got)
	}
}

func TestReloadKeyChangesWithMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.so")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	t1 := time.Now()
	link1, err := linkForReload(path, t1)
	if err != nil {
		t.Fatal(err)
	}

	t2 := t1.Add(time.Second)
	link2, err := linkForReload(path, t2)
	if err != nil {
		t.Fatal(err)
	}

	if link1 == link2 {
		t.Errorf("expected distinct reload paths for distinct mtimes, got %s twice", link1)
	}
}

func TestLoaderReopensOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.so")
	if err := os.WriteFile(path, []byte("not a real plugin"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New()
	l.plugins[path] = &loadedPlugin{mtime: time.Unix(100, 0), h: handles{}}

	// The file's real mtime differs from the cached entry's, so
	// handlesForLocked must not return the cached entry as-is: it takes the
	// reopen path, where plugin.Open fails on this non-plugin file.
	_, err := l.handlesForLocked(path)
	if err == nil {
		t.Fatal("expected a reopen attempt, got the cached entry")
	}
	if !strings.Contains(err.Error(), "failed to open plugin") {
		t.Fatalf("expected a plugin open failure, got %v", err)
	}
}
