// Package notify sends run summaries to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"3nt3/dog-uploader/pipeline"
)

type Notifier interface {
	Notify(ctx context.Context, rep pipeline.Report) error
}

type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegram(token string, chatID int64, opts ...telego.BotOption) (*Telegram, error) {
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, rep pipeline.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.SendMessage(tu.Message(tu.ID(t.chatID), Summary(rep)))
	if err != nil {
		return fmt.Errorf("unable to send telegram message: %w", err)
	}
	return nil
}

// Summary renders rep as a short plain-text message.
func Summary(rep pipeline.Report) string {
	var b strings.Builder

	status := "ok"
	if !rep.OK() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "%s: %s -> /%s\n", status, rep.Breed, strings.Trim(rep.Folder, "/"))

	if rep.FolderErr != nil {
		fmt.Fprintf(&b, "folder error: %v\n", rep.FolderErr)
		return b.String()
	}
	if rep.ResolveErr != nil {
		fmt.Fprintf(&b, "image lookup error: %v\n", rep.ResolveErr)
	}

	fmt.Fprintf(&b, "resolved %d, uploaded %d, failed %d", len(rep.URLs), len(rep.Uploaded), len(rep.Failed))
	if d := rep.Finished.Sub(rep.Started); d > 0 {
		fmt.Fprintf(&b, " in %s", d.Round(10*time.Millisecond))
	}
	b.WriteString("\n")

	for _, f := range rep.Failed {
		fmt.Fprintf(&b, "- %s: %v\n", f.Target.FileName, f.Err)
	}
	return b.String()
}
