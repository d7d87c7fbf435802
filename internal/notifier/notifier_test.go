package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/itemid"
	"pagewatch/internal/kv"
	"pagewatch/internal/ledger"
	"pagewatch/internal/tenant"
	logx "pagewatch/pkg/logx"
)

type fakeCache map[itemid.ID]string

func (f fakeCache) Get(id itemid.ID) string { return f[id] }

type sentMessage struct {
	Channel string
	Msg     Message
}

type fakeSink struct {
	sent []sentMessage
	fail map[string]error // channel -> error
}

func (f *fakeSink) Send(ctx context.Context, channelID string, msg Message) error {
	if err := f.fail[channelID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{Channel: channelID, Msg: msg})
	return nil
}

func newFixture(t *testing.T) (*tenant.Registry, *ledger.Ledger, *fakeSink, fakeCache) {
	t.Helper()
	store := kv.NewMemory()
	reg := tenant.NewRegistry(store, logx.Nop())
	led := ledger.New(store, logx.Nop())
	sink := &fakeSink{fail: map[string]error{}}
	return reg, led, sink, fakeCache{}
}

func TestIdempotenceAcrossPasses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	cc["rules"] = "v1"

	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 1900, logx.Nop())

	rep := n.RunOnce(ctx)
	if rep.Delivered != 1 {
		t.Fatalf("first pass delivered = %d, want 1", rep.Delivered)
	}
	// Unchanged content: the second pass sends nothing.
	rep = n.RunOnce(ctx)
	if rep.Delivered != 0 {
		t.Fatalf("second pass delivered = %d, want 0", rep.Delivered)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("total sends = %d, want exactly 1", len(sink.sent))
	}

	// Content changes: exactly one more delivery.
	cc["rules"] = "v2"
	rep = n.RunOnce(ctx)
	if rep.Delivered != 1 {
		t.Fatalf("post-change pass delivered = %d, want 1", rep.Delivered)
	}
}

func TestFirstSubscriptionDelivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)

	// Content existed in the cache before the tenant subscribed.
	cc["rules"] = "longstanding"

	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 1900, logx.Nop())
	rep := n.RunOnce(ctx)
	if rep.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1 (ledger had no entry)", rep.Delivered)
	}
	if got := sink.sent[0].Msg.EmbedBody; got != "longstanding" {
		t.Fatalf("body = %q", got)
	}
}

func TestEmptyContentNeverFires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	// "rules" has no cached content at all.

	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 1900, logx.Nop())
	rep := n.RunOnce(ctx)
	if rep.Delivered != 0 || len(sink.sent) != 0 {
		t.Fatalf("empty content fired: %+v", rep)
	}
	if _, ok := led.Get("g1", "rules"); ok {
		t.Fatal("ledger written for empty content")
	}
}

func TestDeliveryFailureIsolatedAndRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	cc["rules"] = "v1"
	cc["news"] = "n1"

	// g1's channel is broken; g2 is fine.
	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "broken"); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetWatchedItems(ctx, "g2", []itemid.ID{"rules", "news"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g2", "42"); err != nil {
		t.Fatal(err)
	}
	sink.fail["broken"] = errors.New("channel gone")

	n := New(cc, reg, led, sink, 1900, logx.Nop())
	rep := n.RunOnce(ctx)

	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %+v, want exactly one", rep.Failures)
	}
	var derr *DeliveryError
	if !errors.As(rep.Failures[0], &derr) || derr.TenantID != "g1" {
		t.Fatalf("unexpected failure: %+v", rep.Failures[0])
	}
	// g2 was still processed fully.
	if rep.Delivered != 2 {
		t.Fatalf("delivered = %d, want 2 (g2 pairs)", rep.Delivered)
	}
	// Failed pair's ledger untouched: next pass retries.
	if _, ok := led.Get("g1", "rules"); ok {
		t.Fatal("ledger written despite delivery failure")
	}
	sink.fail = map[string]error{}
	rep = n.RunOnce(ctx)
	if rep.Delivered != 1 {
		t.Fatalf("retry pass delivered = %d, want 1 (g1/rules)", rep.Delivered)
	}
}

func TestChunkedDeliveryMentionsOnFirstOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	content := strings.Repeat("z", 45)
	cc["rules"] = content

	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetRoleSubscribers(ctx, "g1", "rules", []string{"mods", "admins"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 20, logx.Nop())
	rep := n.RunOnce(ctx)
	if rep.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", rep.Delivered)
	}
	if len(sink.sent) != 3 {
		t.Fatalf("messages = %d, want 3 chunks", len(sink.sent))
	}

	first := sink.sent[0].Msg
	if first.EmbedTitle == "" {
		t.Fatal("first chunk missing title")
	}
	if diff := cmp.Diff([]string{"mods", "admins"}, first.Mentions); diff != "" {
		t.Fatalf("mentions mismatch (-want +got):\n%s", diff)
	}

	var rejoined strings.Builder
	rejoined.WriteString(first.EmbedBody)
	for _, s := range sink.sent[1:] {
		if len(s.Msg.Mentions) != 0 || s.Msg.EmbedTitle != "" {
			t.Fatalf("continuation chunk carries mentions/title: %+v", s.Msg)
		}
		rejoined.WriteString(s.Msg.Text)
	}
	if rejoined.String() != content {
		t.Fatal("chunks do not reassemble original content")
	}
}

func TestSkipsTenantsWithoutChannelOrWatchSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	cc["rules"] = "v1"

	// Watched items but no channel.
	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules"}); err != nil {
		t.Fatal(err)
	}
	// Channel but nothing watched.
	if err := reg.SetChannel(ctx, "g2", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 1900, logx.Nop())
	rep := n.RunOnce(ctx)
	if rep.TenantsVisited != 0 || rep.TenantsSkipped != 2 {
		t.Fatalf("visited=%d skipped=%d, want 0/2", rep.TenantsVisited, rep.TenantsSkipped)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("unexpected sends: %+v", sink.sent)
	}
}

func TestRoleMentionsComputedPerItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, led, sink, cc := newFixture(t)
	cc["rules"] = "r"
	cc["news"] = "n"

	if err := reg.SetWatchedItems(ctx, "g1", []itemid.ID{"rules", "news"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetRoleSubscribers(ctx, "g1", "news", []string{"press"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetChannel(ctx, "g1", "42"); err != nil {
		t.Fatal(err)
	}

	n := New(cc, reg, led, sink, 1900, logx.Nop())
	n.RunOnce(ctx)

	if len(sink.sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sink.sent))
	}
	if len(sink.sent[0].Msg.Mentions) != 0 {
		t.Fatalf("rules should have no mentions: %+v", sink.sent[0].Msg.Mentions)
	}
	if diff := cmp.Diff([]string{"press"}, sink.sent[1].Msg.Mentions); diff != "" {
		t.Fatalf("news mentions mismatch (-want +got):\n%s", diff)
	}
}
