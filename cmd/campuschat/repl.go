package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/changyunjeff/campus-mp/internal/app"
	"github.com/changyunjeff/campus-mp/internal/conversation"
	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/service"
)

const help = `commands:
  /list                     inbox
  /open <conversation>      show and focus a conversation
  /close                    leave the focused conversation
  /send <user> <text>       send a message
  /anon <user> <text>       send anonymously
  /resend <message id>      resend in the focused conversation
  /pin | /mute | /delete <conversation>
  /online <user>            check whether a user is online
  /like | /favorite <user> <post id>
  /follow <user>
  /notices                  system notifications
  /feed                     likes, comments, follows
  /status                   connection state
  /quit
plain text is sent to the focused conversation`

type repl struct {
	c   *app.Client
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	watches map[string]func()
}

func newREPL(c *app.Client, in io.Reader, out io.Writer) *repl {
	return &repl{c: c, in: in, out: out, watches: make(map[string]func())}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *repl) Run(ctx context.Context) error {
	unsubscribe := r.c.Conversations.Subscribe(r.onEvent)
	defer unsubscribe()
	r.c.OnToast(func(t app.Toast) { r.printf("** %s: %s", t.Title, t.Content) })
	defer r.c.OnToast(nil)
	defer func() {
		r.mu.Lock()
		for _, un := range r.watches {
			un()
		}
		r.mu.Unlock()
	}()

	r.printf("signed in as %s, /help for commands", r.c.Identity.Identity())
	sc := bufio.NewScanner(r.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := r.exec(ctx, line); err != nil {
			r.printf("! %v", err)
		}
	}
	return sc.Err()
}

func (r *repl) onEvent(e conversation.Event) {
	switch e.Type {
	case conversation.MessageAdded:
		if e.ConversationID == r.c.Conversations.Focused() {
			if c, ok := r.c.Conversations.Get(e.ConversationID); ok {
				if i := c.FindMessage(e.MessageID); i >= 0 && !c.Messages[i].IsSelf {
					r.printMessage(c.Messages[i])
				}
			}
			return
		}
		if c, ok := r.c.Conversations.Get(e.ConversationID); ok && !c.IsMuted {
			if i := c.FindMessage(e.MessageID); i >= 0 && !c.Messages[i].IsSelf {
				r.printf("[%s] %s", e.ConversationID, c.Messages[i].Content)
			}
		}
	case conversation.StatusChanged:
		if e.Status != protocol.StatusSending {
			r.printf("  (%s %s)", e.MessageID, e.Status)
		}
	case conversation.Notice:
		r.printf("** %s", e.Text)
	}
}

func (r *repl) printMessage(m domain.Message) {
	who := m.From
	if m.IsSelf {
		who = "me"
	}
	ts := time.UnixMilli(m.Timestamp).Format("01-02 15:04")
	status := ""
	if m.IsSelf && m.Status != protocol.StatusSuccess {
		status = " [" + string(m.Status) + "]"
	}
	r.printf("%s %s: %s%s  #%s", ts, who, m.Content, status, m.ID)
}

func (r *repl) exec(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.sendFocused(ctx, line)
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	arg, tail, _ := strings.Cut(rest, " ")
	tail = strings.TrimSpace(tail)

	switch cmd {
	case "/help":
		r.printf("%s", help)
	case "/list":
		r.list()
	case "/open":
		return r.open(ctx, arg)
	case "/close":
		return r.c.Conversations.SetFocused(ctx, "")
	case "/send", "/anon":
		if arg == "" || tail == "" {
			return errors.New("usage: " + cmd + " <user> <text>")
		}
		in := service.ChatInput{To: arg, Content: tail, Anonymous: cmd == "/anon"}
		if in.Anonymous {
			in.ConversationID = domain.AnonymousConversationID(arg)
		}
		_, err := r.c.Messages.SendChat(ctx, in)
		return err
	case "/resend":
		focused := r.c.Conversations.Focused()
		if focused == "" {
			return errors.New("open a conversation first")
		}
		return r.c.Messages.ResendMessage(ctx, focused, arg)
	case "/pin":
		on, err := r.c.Conversations.TogglePin(ctx, arg)
		if err == nil {
			r.printf("pinned: %v", on)
		}
		return err
	case "/mute":
		on, err := r.c.Conversations.ToggleMute(ctx, arg)
		if err == nil {
			r.printf("muted: %v", on)
		}
		return err
	case "/delete":
		return r.c.Conversations.Delete(ctx, arg)
	case "/online":
		return r.online(ctx, arg)
	case "/like":
		return r.c.Messages.SendLike(ctx, service.SocialInput{To: arg, PostID: tail})
	case "/favorite":
		return r.c.Messages.SendFavorite(ctx, service.SocialInput{To: arg, PostID: tail})
	case "/follow":
		return r.c.Messages.SendFollow(ctx, service.SocialInput{To: arg})
	case "/notices":
		for _, n := range r.c.System.Latest(20) {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			r.printf("%s %s %s", mark, n.Title, n.Content)
		}
		r.c.System.MarkAllRead()
	case "/feed":
		for _, a := range r.c.Feed.List() {
			r.printf("%s from %s %s", a.Kind, a.From, a.Content)
		}
		r.c.Feed.MarkAllRead(ctx)
	case "/status":
		r.printf("%s (failed attempts: %d)", r.c.Connection.State(), r.c.Connection.Attempts())
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (r *repl) sendFocused(ctx context.Context, text string) error {
	focused := r.c.Conversations.Focused()
	if focused == "" {
		return errors.New("open a conversation first, or use /send")
	}
	participant, anonymous := domain.SplitConversationID(focused)
	_, err := r.c.Messages.SendChat(ctx, service.ChatInput{
		To:             participant,
		Content:        text,
		Anonymous:      anonymous,
		ConversationID: focused,
	})
	return err
}

func (r *repl) list() {
	items := r.c.Inbox.Items()
	for _, it := range items {
		flags := ""
		if it.IsPinned {
			flags += "^"
		}
		if it.IsOnline {
			flags += "•"
		}
		unread := ""
		if it.DisplayUnread > 0 {
			unread = fmt.Sprintf(" (%d)", it.DisplayUnread)
		}
		id := it.ID
		if it.System {
			id = domain.SystemConversationID
		}
		r.printf("%-2s %-20s %-16s %s%s", flags, id, it.DisplayName, it.LastMessage, unread)
	}
	r.printf("unread: %d", r.c.Inbox.TotalUnread())
}

func (r *repl) open(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("usage: /open <conversation>")
	}
	c, ok := r.c.Conversations.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := r.c.Conversations.SetFocused(ctx, id); err != nil {
		return err
	}
	for _, m := range c.Messages {
		r.printMessage(m)
	}
	if !c.IsAnonymous {
		// best effort; offline is the default display
		_ = r.c.Presence.SendCheckOnline(ctx, c.ParticipantID)
	}
	return nil
}

func (r *repl) online(ctx context.Context, user string) error {
	if user == "" {
		return errors.New("usage: /online <user>")
	}
	r.mu.Lock()
	if _, ok := r.watches[user]; !ok {
		r.watches[user] = r.c.Presence.Subscribe(user, func(online bool) {
			state := "offline"
			if online {
				state = "online"
			}
			r.printf("%s is %s", user, state)
		})
	}
	r.mu.Unlock()
	return r.c.Presence.SendCheckOnline(ctx, user)
}
