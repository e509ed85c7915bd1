package providers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
	"reminder-service/internal/delivery"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/utils"
)

// SendFunc posts text to a Telegram chat.
type SendFunc func(ctx context.Context, chatID int64, text string) (int, error)

// Telegram is the banner-style channel. The recipient's chat id lives in
// ChannelAddresses[telegram].
type Telegram struct {
	token   string
	limiter *rate.Limiter
	logger  *logging.Logger
	send    SendFunc

	mu     sync.Mutex
	client *bot.Bot
}

// NewTelegram creates the channel. A nil send uses the Bot API.
func NewTelegram(token string, ratePerSecond int, logger *logging.Logger, send SendFunc) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 25
	}
	t := &Telegram{
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
		send:    send,
	}
	if t.send == nil {
		t.send = t.botSend
	}
	return t
}

func (t *Telegram) Name() models.Channel  { return models.ChannelTelegram }
func (t *Telegram) Style() delivery.Style { return delivery.StyleBanner }

func (t *Telegram) IsAvailable() bool { return t.token != "" }

func (t *Telegram) Validate(_ models.Notification, prefs models.UserPreferences) bool {
	_, err := chatID(prefs)
	return err == nil
}

func (t *Telegram) Deliver(ctx context.Context, n models.Notification, prefs models.UserPreferences) models.DeliveryResult {
	res := models.DeliveryResult{Channel: models.ChannelTelegram, Timestamp: time.Now()}
	id, err := chatID(prefs)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := t.limiter.Wait(ctx); err != nil {
		res.Error = fmt.Sprintf("telegram rate limit exceeded: %v", err)
		return res
	}

	text := fmt.Sprintf("*%s*\n%s", Title(n), Body(n))
	var msgID int
	err = utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		var err error
		msgID, err = t.send(ctx, id, text)
		if err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.DeliveryID = fmt.Sprintf("%d:%d", id, msgID)
	return res
}

func (t *Telegram) botSend(ctx context.Context, chatID int64, text string) (int, error) {
	b, err := t.botClient()
	if err != nil {
		return 0, err
	}
	msg, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *Telegram) botClient() (*bot.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}
	b, err := bot.New(t.token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	t.client = b
	return b, nil
}

func chatID(prefs models.UserPreferences) (int64, error) {
	raw := prefs.ChannelAddresses[models.ChannelTelegram]
	if raw == "" {
		return 0, fmt.Errorf("missing chat_id for user %s", prefs.UserID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat_id %q for user %s", raw, prefs.UserID)
	}
	return id, nil
}
