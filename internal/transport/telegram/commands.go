package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pagewatch/internal/itemid"
	"pagewatch/internal/kv"
	"pagewatch/internal/tenant"
	logx "pagewatch/pkg/logx"
)

// CommandDeps is what the command layer needs from the engine. Registry is
// the same instance the notifier reads, so command mutations and pass reads
// never diverge.
type CommandDeps struct {
	Registry *tenant.Registry
	// KnownItems lists ids currently in the content cache.
	KnownItems func() []itemid.ID
	// Status renders the engine's status block.
	Status func() string
}

// commandTimeout bounds registry persistence triggered by a command.
const commandTimeout = 5 * time.Second

// BindCommands registers the subscription commands. A chat is a tenant: its
// decimal chat id doubles as the tenant id, and /channel binds delivery to
// the chat itself.
func (a *Adapter) BindCommands(deps CommandDeps) {
	a.bot.Handle("/pages", func(c tele.Context) error {
		ids := deps.KnownItems()
		if len(ids) == 0 {
			return c.Send("no pages cached yet")
		}
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			lines = append(lines, "• "+string(id))
		}
		return c.Send("known pages:\n" + strings.Join(lines, "\n"))
	})

	a.bot.Handle("/watch", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("usage: /watch <page> [page ...]")
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		tid := tenantID(c)
		cfg := deps.Registry.Get(tid)
		items := cfg.WatchedItems
		for _, arg := range args {
			if id := itemid.Normalize(arg); id != "" {
				items = append(items, id)
			}
		}
		err := deps.Registry.SetWatchedItems(ctx, tid, items)
		return replyMutation(c, a.log, err,
			fmt.Sprintf("watching %d page(s)", len(deps.Registry.Get(tid).WatchedItems)))
	})

	a.bot.Handle("/unwatch", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("usage: /unwatch <page> [page ...]")
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		tid := tenantID(c)
		drop := map[itemid.ID]bool{}
		for _, arg := range args {
			drop[itemid.Normalize(arg)] = true
		}
		var kept []itemid.ID
		for _, it := range deps.Registry.Get(tid).WatchedItems {
			if !drop[it] {
				kept = append(kept, it)
			}
		}
		err := deps.Registry.SetWatchedItems(ctx, tid, kept)
		return replyMutation(c, a.log, err, fmt.Sprintf("watching %d page(s)", len(kept)))
	})

	a.bot.Handle("/roles", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("usage: /roles <page> [role ...] (no roles clears)")
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		item := itemid.Normalize(args[0])
		if item == "" {
			return c.Send("invalid page name")
		}
		roles := args[1:]
		err := deps.Registry.SetRoleSubscribers(ctx, tenantID(c), item, roles)
		if len(roles) == 0 {
			return replyMutation(c, a.log, err, "mentions cleared for "+string(item))
		}
		return replyMutation(c, a.log, err,
			fmt.Sprintf("%d mention(s) set for %s", len(roles), item))
	})

	a.bot.Handle("/channel", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		chat := c.Chat()
		if chat == nil {
			return nil
		}
		channel := strconv.FormatInt(chat.ID, 10)
		err := deps.Registry.SetChannel(ctx, tenantID(c), channel)
		return replyMutation(c, a.log, err, "page change notifications will be delivered here")
	})

	a.bot.Handle("/status", func(c tele.Context) error {
		return c.Send(deps.Status())
	})
}

// tenantID maps a chat to its tenant id.
func tenantID(c tele.Context) string {
	chat := c.Chat()
	if chat == nil {
		return ""
	}
	return strconv.FormatInt(chat.ID, 10)
}

// replyMutation acknowledges a registry mutation. A persistence failure still
// applied in memory, so the user gets the result plus a warning.
func replyMutation(c tele.Context, log logx.Logger, err error, ok string) error {
	if err == nil {
		return c.Send(ok)
	}
	var perr *kv.PersistenceError
	if errors.As(err, &perr) {
		log.Warn("command mutation persisted in memory only", logx.Err(err))
		return c.Send(ok + "\n⚠️ warning: could not persist; the setting may be lost on restart")
	}
	log.Error("command mutation failed", logx.Err(err))
	return c.Send("something went wrong, try again")
}
