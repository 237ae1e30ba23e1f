// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"film_department_bot/internal/domain/command"
	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/message"
	domainTelegram "film_department_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// allowedUpdates limits what the platform sends us to plain messages.
const allowedUpdates = `["message"]`

// BotOptions configures the underlying telebot client.
type BotOptions struct {
	Token    string
	APIURL   string        // Empty means the public Bot API
	MaxConns int           // Simultaneous outbound connections; extra calls wait for a free one
	Timeout  time.Duration // Per HTTP request, must exceed the long-poll timeout
}

// NewBot creates the telebot client. It calls getMe, so a bad token or an
// unreachable API fails here, before any traffic is served.
func NewBot(opts BotOptions, logger *logrus.Entry) (*telebot.Bot, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.MaxConns > 0 {
		transport.MaxConnsPerHost = opts.MaxConns
		transport.MaxIdleConnsPerHost = opts.MaxConns
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	b, err := telebot.NewBot(telebot.Settings{
		URL:    opts.APIURL,
		Token:  opts.Token,
		Client: &http.Client{Transport: transport, Timeout: timeout},
		OnError: func(err error, c telebot.Context) {
			logger.WithError(err).Error("telebot error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return b, nil
}

// TelebotAdapter talks to the Bot API through a telebot client. It is the
// Delivery Sink, the polling UpdateSource and the WebhookRegistrar.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

var (
	_ delivery.Sink                   = (*TelebotAdapter)(nil)
	_ domainTelegram.UpdateSource     = (*TelebotAdapter)(nil)
	_ domainTelegram.WebhookRegistrar = (*TelebotAdapter)(nil)
)

// Username is the bot's @username as reported by getMe.
func (tba *TelebotAdapter) Username() string {
	if tba.bot.Me == nil {
		return ""
	}
	return tba.bot.Me.Username
}

// Deliver sends the reply with exactly one sendMessage call. The call is not
// abandoned on context cancellation: a send that might still land must not be
// reported as failed, or the caller could retry it into a double message.
func (tba *TelebotAdapter) Deliver(ctx context.Context, reply message.Reply) (delivery.Ack, error) {
	if err := ctx.Err(); err != nil {
		return delivery.Ack{}, delivery.Transient(err)
	}

	params := map[string]string{
		"chat_id": strconv.FormatInt(reply.ChatID, 10),
		"text":    reply.Text,
	}
	if reply.ParseMode != "" {
		params["parse_mode"] = reply.ParseMode
	}
	if reply.DisablePreview {
		params["disable_web_page_preview"] = "true"
	}

	data, err := tba.bot.Raw("sendMessage", params)
	resp, err := decodeResponse(data, err)
	if err != nil {
		return delivery.Ack{}, err
	}

	var sent struct {
		MessageID int   `json:"message_id"`
		Date      int64 `json:"date"`
	}
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		// The platform accepted the message; only our bookkeeping is incomplete.
		return delivery.Ack{ChatID: reply.ChatID, SentAt: time.Now()}, nil
	}
	return delivery.Ack{
		ChatID:    reply.ChatID,
		MessageID: sent.MessageID,
		SentAt:    time.Unix(sent.Date, 0),
	}, nil
}

// pollSeconds converts a long-poll wait to whole seconds. A positive wait under
// a second becomes 1, since 0 turns the long poll into a busy loop.
func pollSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// GetUpdates performs one getUpdates long poll. Cancelling ctx returns at once;
// the abandoned request's updates are not acknowledged and will be fetched again.
func (tba *TelebotAdapter) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]message.Update, error) {
	params := map[string]string{
		"offset":          strconv.FormatInt(offset, 10),
		"timeout":         strconv.Itoa(pollSeconds(timeout)),
		"allowed_updates": allowedUpdates,
	}
	resp, err := tba.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var raw []telebot.Update
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, delivery.Transient(fmt.Errorf("decode getUpdates result: %w", err))
	}
	updates := make([]message.Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, ToUpdate(u))
	}
	return updates, nil
}

// SetWebhook registers url as the push target.
func (tba *TelebotAdapter) SetWebhook(ctx context.Context, url, secretToken string) error {
	params := map[string]string{
		"url":             url,
		"allowed_updates": allowedUpdates,
	}
	if secretToken != "" {
		params["secret_token"] = secretToken
	}
	_, err := tba.call(ctx, "setWebhook", params)
	return err
}

func (tba *TelebotAdapter) WebhookInfo(ctx context.Context) (domainTelegram.WebhookInfo, error) {
	resp, err := tba.call(ctx, "getWebhookInfo", map[string]string{})
	if err != nil {
		return domainTelegram.WebhookInfo{}, err
	}
	var info struct {
		URL                string `json:"url"`
		PendingUpdateCount int    `json:"pending_update_count"`
		LastErrorDate      int64  `json:"last_error_date"`
		LastErrorMessage   string `json:"last_error_message"`
	}
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return domainTelegram.WebhookInfo{}, delivery.Transient(fmt.Errorf("decode getWebhookInfo result: %w", err))
	}
	out := domainTelegram.WebhookInfo{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorMessage:   info.LastErrorMessage,
	}
	if info.LastErrorDate > 0 {
		out.LastErrorAt = time.Unix(info.LastErrorDate, 0)
	}
	return out, nil
}

// RemoveWebhook switches the platform back to getUpdates delivery. Pending
// updates are kept so polling picks them up.
func (tba *TelebotAdapter) RemoveWebhook(ctx context.Context) error {
	_, err := tba.call(ctx, "deleteWebhook", map[string]string{"drop_pending_updates": "false"})
	return err
}

// PublishCommands pushes the registered commands to the platform's command menu.
// Names the menu cannot show (the platform only allows lowercase letters, digits
// and underscores) are skipped but remain routable.
func (tba *TelebotAdapter) PublishCommands(entries []command.Entry) (int, error) {
	cmds := make([]telebot.Command, 0, len(entries))
	for _, e := range entries {
		if !menuName(e.Name) || e.Description == "" {
			continue
		}
		cmds = append(cmds, telebot.Command{Text: e.Name, Description: e.Description})
	}
	if len(cmds) == 0 {
		return 0, nil
	}
	if err := tba.bot.SetCommands(cmds); err != nil {
		return 0, fmt.Errorf("setMyCommands: %w", err)
	}
	return len(cmds), nil
}

func menuName(name string) bool {
	if len(name) == 0 || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// call runs a Raw request that may be abandoned when ctx is done.
func (tba *TelebotAdapter) call(ctx context.Context, method string, params map[string]string) (*apiResponse, error) {
	type result struct {
		resp *apiResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := tba.bot.Raw(method, params)
		resp, err := decodeResponse(data, err)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", method, r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ToUpdate converts a platform update. Updates without a message keep their ID
// so the polling offset still moves past them; they route as ignored.
func ToUpdate(u telebot.Update) message.Update {
	out := message.Update{ID: int64(u.ID)}
	if u.Message == nil {
		return out
	}
	out.Text = u.Message.Text
	out.ReceivedAt = time.Unix(u.Message.Unixtime, 0)
	if u.Message.Chat != nil {
		out.ChatID = u.Message.Chat.ID
	}
	return out
}
