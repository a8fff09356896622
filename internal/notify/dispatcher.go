// Package notify publishes change notifications and run logs to Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/runlog"
	"github.com/JakeFAU/pagewatch/internal/storage"
)

// MaxCaptionRunes is the Bot API limit for photo captions.
const MaxCaptionRunes = 1024

// ErrImageMissing reports that the cropped screenshot could not be found.
var ErrImageMissing = errors.New("screenshot not found")

// PhotoSender uploads a captioned photo.
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID, caption, filename string, photo []byte) error
}

// ImageSource reads the stored screenshot.
type ImageSource interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// DispatcherConfig holds the caption links and destination.
type DispatcherConfig struct {
	ChannelID    string
	PageURL      string
	SubscribeURL string
}

// Dispatcher composes the notification caption and publishes it with the
// region screenshot as one message.
type Dispatcher struct {
	cfg    DispatcherConfig
	sender PhotoSender
	images ImageSource
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig, sender PhotoSender, images ImageSource) (*Dispatcher, error) {
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("notification channel id is required")
	}
	if cfg.PageURL == "" {
		return nil, fmt.Errorf("page url is required")
	}
	if sender == nil || images == nil {
		return nil, fmt.Errorf("photo sender and image source are required")
	}
	return &Dispatcher{cfg: cfg, sender: sender, images: images}, nil
}

// Dispatch publishes alertText, dateText and the image stored at imagePath.
// Any failure is logged and returned; the caller must not adopt the new
// baseline when err != nil.
func (d *Dispatcher) Dispatch(ctx context.Context, alertText, dateText, imagePath string, log *runlog.Log) error {
	photo, err := d.images.GetObject(ctx, imagePath)
	if err != nil {
		log.Warn("⚠️ Screenshot not found", zap.String("path", imagePath), zap.Error(err))
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrImageMissing, imagePath)
		}
		return fmt.Errorf("read screenshot %s: %w", imagePath, err)
	}
	if len(photo) == 0 {
		log.Warn("⚠️ Screenshot not found", zap.String("path", imagePath))
		return fmt.Errorf("%w: %s is empty", ErrImageMissing, imagePath)
	}

	if d.cfg.SubscribeURL == "" {
		log.Warn("⚠️ SUBSCRIBE is not set in environment variables!")
	}
	caption := BuildCaption(alertText, dateText, d.cfg.PageURL, d.cfg.SubscribeURL)

	if err := d.sender.SendPhoto(ctx, d.cfg.ChannelID, caption, path.Base(imagePath), photo); err != nil {
		log.Error(fmt.Sprintf("❌ Sending error: %v", err))
		return fmt.Errorf("publish notification: %w", err)
	}
	log.Info("✅ Message sent to the channel")
	return nil
}

// BuildCaption renders the HTML caption. Alert and date text are escaped;
// the alert text is shortened with an ellipsis when the caption would exceed
// MaxCaptionRunes.
func BuildCaption(alertText, dateText, pageURL, subscribeURL string) string {
	head := "🔔 UPDATES\n\n"
	var tail strings.Builder
	fmt.Fprintf(&tail, "\n\n<a href=\"%s\">🔗 View on the website </a>\n\n", html.EscapeString(pageURL))
	if dateText != "" {
		tail.WriteString(html.EscapeString(dateText))
	}
	if subscribeURL != "" {
		fmt.Fprintf(&tail, "\n\n<a href=\"%s\">⚡ SUBSCRIBE ⚡</a>", html.EscapeString(subscribeURL))
	}

	budget := MaxCaptionRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail.String())
	return head + fitEscaped(alertText, budget) + tail.String()
}

// fitEscaped escapes s and trims it from the end until the escaped form,
// plus an ellipsis when trimmed, fits in budget runes. Entities are never
// split because trimming happens before escaping.
func fitEscaped(s string, budget int) string {
	escaped := html.EscapeString(s)
	if utf8.RuneCountInString(escaped) <= budget {
		return escaped
	}
	if budget <= 1 {
		return ""
	}
	runes := []rune(s)
	for n := min(len(runes), budget-1); n > 0; n-- {
		candidate := html.EscapeString(strings.TrimRight(string(runes[:n]), " \n")) + "…"
		if utf8.RuneCountInString(candidate) <= budget {
			return candidate
		}
	}
	return "…"
}
