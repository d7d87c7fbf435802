// Package telegram delivers notifications over Telegram and carries the
// subscription commands that mutate the tenant registry.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"pagewatch/internal/notifier"
	logx "pagewatch/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration // long-poll timeout; 0 means 10s
	RatePerSec  int           // outbound send rate; 0 means 3
}

// Adapter wraps a telebot bot. It implements notifier.Sink and hosts the
// command handlers registered via BindCommands.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		// Bound each outbound call so a stuck send cannot stall a
		// notification pass; long-poll requests use their own client.
		Client: &http.Client{Timeout: sendTimeout + timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Start begins long polling. It returns immediately; polling runs until the
// context is cancelled or Stop is called.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	a.runWG.Add(1)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		go func() {
			<-ctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()
}

// Stop ends polling. Shutdown stays snappy even if a long-poll is pending.
func (a *Adapter) Stop(ctx context.Context) {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()
	if !wasRunning {
		return
	}

	go a.bot.Stop()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
		a.log.Info("polling stopped")
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
	}
}

// sendTimeout bounds one outbound API call so a stuck send cannot block the
// rest of a notification pass indefinitely.
const sendTimeout = 10 * time.Second

// Send implements notifier.Sink. ChannelID is a Telegram chat id in decimal.
// The first chunk of a change arrives with EmbedTitle/EmbedBody and optional
// mentions; continuation chunks arrive as plain Text.
func (a *Adapter) Send(ctx context.Context, channelID string, msg notifier.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	chat := &tele.Chat{ID: chatID}
	if msg.EmbedTitle != "" || msg.EmbedBody != "" {
		text := renderPrimary(msg)
		_, err = a.bot.Send(chat, text, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		return err
	}
	_, err = a.bot.Send(chat, msg.Text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// renderPrimary formats the first chunk: bold title, escaped body, mentions
// on a trailing line.
func renderPrimary(msg notifier.Message) string {
	var b strings.Builder
	if msg.EmbedTitle != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(msg.EmbedTitle))
		b.WriteString("</b>\n")
	}
	b.WriteString(html.EscapeString(msg.EmbedBody))
	if len(msg.Mentions) > 0 {
		b.WriteString("\n")
		for i, m := range msg.Mentions {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("@")
			b.WriteString(html.EscapeString(strings.TrimPrefix(m, "@")))
		}
	}
	return b.String()
}
