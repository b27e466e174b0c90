// internal/app/system/transport/telegram.go
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ErrDenied is returned when the platform refuses an operation because the
// bot lacks the required privilege (typically: not an admin with "restrict
// members" rights). Callers treat this as recoverable and surface an
// operator-facing warning instead of failing the triggering event.
var ErrDenied = errors.New("transport operation denied: bot lacks required permission")

// Telegram is the Bot API backed Gateway. A single polling goroutine
// translates updates into Events; outbound calls go through the API client
// with a bounded HTTP timeout.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	log    *zap.Logger
	events chan Event

	pollTimeout int

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTelegram connects to the Bot API and verifies the token by fetching the
// bot's own identity. requestTimeout bounds every outbound HTTP call.
func NewTelegram(token string, requestTimeout time.Duration, logger *zap.Logger) (*Telegram, error) {
	client := &http.Client{Timeout: requestTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}

	logger.Info("telegram gateway connected",
		zap.String("bot_username", bot.Self.UserName),
		zap.Int64("bot_id", bot.Self.ID))

	return &Telegram{
		bot:         bot,
		log:         logger,
		events:      make(chan Event, 64),
		pollTimeout: 30,
	}, nil
}

// BotUsername returns the bot's public @username (without the @).
func (t *Telegram) BotUsername() string {
	return t.bot.Self.UserName
}

// Start begins long polling. Events appear on Events() until Close is called.
func (t *Telegram) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout

	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(t.events)
		for upd := range updates {
			for _, ev := range t.translate(upd) {
				t.events <- ev
			}
		}
	}()
	t.log.Info("telegram polling started", zap.Int("poll_timeout_s", t.pollTimeout))
}

// Close stops polling and drains the event stream.
func (t *Telegram) Close() {
	t.stopOnce.Do(func() {
		t.bot.StopReceivingUpdates()
		t.wg.Wait()
		t.log.Info("telegram gateway closed")
	})
}

// Events implements Gateway.
func (t *Telegram) Events() <-chan Event { return t.events }

// translate maps one raw update onto zero or more Events. Events caused by
// the bot itself are dropped.
func (t *Telegram) translate(upd tgbotapi.Update) []Event {
	if cb := upd.CallbackQuery; cb != nil {
		ev := Event{
			Kind:         EventButtonPressed,
			MemberID:     cb.From.ID,
			Username:     displayName(cb.From),
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			ev.GroupID = cb.Message.Chat.ID
			ev.GroupTitle = cb.Message.Chat.Title
			ev.MessageID = cb.Message.MessageID
			ev.Private = cb.Message.Chat.IsPrivate()
		}
		return []Event{ev}
	}

	msg := upd.Message
	if msg == nil {
		return nil
	}

	base := Event{
		GroupID:    msg.Chat.ID,
		GroupTitle: msg.Chat.Title,
		MessageID:  msg.MessageID,
		Private:    msg.Chat.IsPrivate(),
	}
	if msg.From != nil {
		base.MemberID = msg.From.ID
		base.Username = displayName(msg.From)
	}

	if len(msg.NewChatMembers) > 0 {
		var evs []Event
		for _, member := range msg.NewChatMembers {
			if member.ID == t.bot.Self.ID {
				continue
			}
			ev := base
			ev.Kind = EventMemberJoined
			ev.MemberID = member.ID
			ev.Username = displayName(&member)
			evs = append(evs, ev)
		}
		return evs
	}

	if left := msg.LeftChatMember; left != nil {
		if left.ID == t.bot.Self.ID {
			return nil
		}
		ev := base
		ev.Kind = EventMemberLeft
		ev.MemberID = left.ID
		ev.Username = displayName(left)
		return []Event{ev}
	}

	if msg.From != nil && msg.From.ID == t.bot.Self.ID {
		return nil
	}

	if msg.IsCommand() {
		ev := base
		ev.Kind = EventCommandInvoked
		ev.Command = msg.Command()
		ev.Args = strings.Fields(msg.CommandArguments())
		return []Event{ev}
	}

	if msg.Text != "" {
		ev := base
		ev.Kind = EventMessage
		ev.Text = msg.Text
		return []Event{ev}
	}
	return nil
}

// SendMessage implements Sender. Buttons render as one inline row per button.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, buttons ...Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			var btn tgbotapi.InlineKeyboardButton
			if b.URL != "" {
				btn = tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL)
			} else {
				btn = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	_, err := t.bot.Send(msg)
	return wrapDenied(err)
}

// RestrictMember implements Restrictor: revokes all posting permissions,
// optionally until a deadline.
func (t *Telegram) RestrictMember(ctx context.Context, groupID, memberID int64, until *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: groupID, UserID: memberID},
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if until != nil {
		cfg.UntilDate = until.Unix()
	}
	_, err := t.bot.Request(cfg)
	return wrapDenied(err)
}

// UnrestrictMember implements Restrictor: restores posting permissions.
// Administrative permissions (change info, invite, pin) stay off.
func (t *Telegram) UnrestrictMember(ctx context.Context, groupID, memberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: groupID, UserID: memberID},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	}
	_, err := t.bot.Request(cfg)
	return wrapDenied(err)
}

// MemberStatus implements Gateway.
func (t *Telegram) MemberStatus(ctx context.Context, groupID, memberID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: groupID, UserID: memberID},
	})
	if err != nil {
		return "", wrapDenied(err)
	}
	return member.Status, nil
}

// AnswerCallback implements Gateway.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// DeleteMessage implements Gateway.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return wrapDenied(err)
}

// wrapDenied maps the platform's permission refusals onto ErrDenied so
// callers can branch with errors.Is. Telegram reports these as 400/403 with
// messages like "not enough rights to restrict/unrestrict chat member" or
// "CHAT_ADMIN_REQUIRED".
func wrapDenied(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "not enough rights") ||
		strings.Contains(lower, "chat_admin_required") ||
		strings.Contains(lower, "forbidden") {
		return errors.Join(ErrDenied, err)
	}
	return err
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}
