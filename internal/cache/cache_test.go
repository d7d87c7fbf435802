package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/itemid"
	logx "pagewatch/pkg/logx"
)

// fakeSource serves canned content and fails on demand.
type fakeSource struct {
	labels  []string
	content map[string]string
	fail    map[string]error
	fetches []string
}

func (f *fakeSource) List(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.labels...), nil
}

func (f *fakeSource) Fetch(ctx context.Context, label string) (string, error) {
	f.fetches = append(f.fetches, label)
	if err, ok := f.fail[label]; ok {
		return "", err
	}
	return f.content[label], nil
}

func TestRefreshAllPartialFailureIsolation(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		content: map[string]string{"One": "a", "Two": "b", "Three": "c"},
		fail:    map[string]error{},
	}
	c := New(src, logx.Nop())
	labels := []string{"One", "Two", "Three"}

	// Seed all three.
	rep := c.RefreshAll(context.Background(), labels)
	if len(rep.Failed) != 0 || len(rep.Refreshed) != 3 {
		t.Fatalf("seed refresh: refreshed=%d failed=%d", len(rep.Refreshed), len(rep.Failed))
	}

	// Second cycle: item 2 fails, 1 and 3 change.
	src.content["One"] = "a2"
	src.content["Three"] = "c2"
	src.fail["Two"] = errors.New("remote flake")

	rep = c.RefreshAll(context.Background(), labels)
	if diff := cmp.Diff([]itemid.ID{"one", "three"}, rep.Refreshed); diff != "" {
		t.Fatalf("refreshed mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].ID != "two" {
		t.Fatalf("failed = %+v, want exactly item two", rep.Failed)
	}

	if got := c.Get("one"); got != "a2" {
		t.Fatalf("item one = %q, want updated", got)
	}
	if got := c.Get("three"); got != "c2" {
		t.Fatalf("item three = %q, want updated", got)
	}
	// The failed item keeps its prior cached value.
	if got := c.Get("two"); got != "b" {
		t.Fatalf("item two = %q, want stale value retained", got)
	}
}

func TestGetAbsentIsEmpty(t *testing.T) {
	t.Parallel()
	c := New(&fakeSource{}, logx.Nop())
	if got := c.Get("never_seen"); got != "" {
		t.Fatalf("Get on absent = %q, want empty", got)
	}
}

func TestRefreshAllSkipsUnnormalizableLabels(t *testing.T) {
	t.Parallel()
	src := &fakeSource{content: map[string]string{"Ok": "x"}}
	c := New(src, logx.Nop())

	rep := c.RefreshAll(context.Background(), []string{"!!!", "Ok"})
	if len(rep.Refreshed) != 1 || rep.Refreshed[0] != "ok" {
		t.Fatalf("refreshed = %+v", rep.Refreshed)
	}
	if diff := cmp.Diff([]string{"Ok"}, src.fetches); diff != "" {
		t.Fatalf("fetches mismatch (-want +got):\n%s", diff)
	}
}
