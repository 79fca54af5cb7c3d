package telegram

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// maxFailuresInReport ограничивает число ошибок, перечисленных в отчёте.
const maxFailuresInReport = 20

// Sender отправляет сообщения. *tgbotapi.BotAPI удовлетворяет интерфейсу.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет сводку пакетного запуска в чат Telegram.
type Notifier struct {
	bot    Sender
	chatID int64
	log    zerolog.Logger
}

// NewNotifier создаёт уведомитель.
func NewNotifier(bot Sender, chatID int64, logger zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, log: logger}
}

// NotifyBatch отправляет отчёт, разбивая его на части по лимиту Telegram.
func (n *Notifier) NotifyBatch(ctx context.Context, run domain.BatchRun) error {
	target := strconv.FormatInt(n.chatID, 10)
	for _, part := range SplitMessage(FormatBatchReport(run), 0) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			return fmt.Errorf("отправка отчёта: %w", err)
		}
	}
	n.log.Debug().Str("run", run.ID).Int64("chat", n.chatID).Msg("notifier: отчёт отправлен")
	return nil
}

// FormatBatchReport строит HTML-отчёт о пакетном запуске.
func FormatBatchReport(run domain.BatchRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Расписания на неделю %s</b>\n", run.WeekStart.Format("2006-01-02"))
	fmt.Fprintf(&b, "Запуск: <code>%s</code>\n", html.EscapeString(run.ID))
	fmt.Fprintf(&b, "Успешно: %d, ошибок: %d (%.1f%%)\n", run.Succeeded, run.Failed, run.SuccessRate())
	fmt.Fprintf(&b, "Время: %s, в среднем на автора: %s\n", run.Duration.Round(time.Millisecond), run.AvgPerCreator().Round(time.Millisecond))

	var failed []domain.CreatorOutcome
	for _, o := range run.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	if len(failed) == 0 {
		return b.String()
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].CreatorID < failed[j].CreatorID })

	b.WriteString("\n<b>Ошибки</b>\n")
	for i, o := range failed {
		if i == maxFailuresInReport {
			fmt.Fprintf(&b, "… и ещё %d\n", len(failed)-maxFailuresInReport)
			break
		}
		reason := "неизвестная ошибка"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		fmt.Fprintf(&b, "• %s (попыток: %d): %s\n", html.EscapeString(o.CreatorID), o.Attempts, html.EscapeString(reason))
	}
	return b.String()
}

var _ domain.BatchNotifier = (*Notifier)(nil)
