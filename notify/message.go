package notify

import (
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/holodex"
)

// ThumbnailURL is the public preview image for a video.
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/0.jpg", videoID)
}

// WatchURL is the public watch link for a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// PluralMinutes returns the Russian ending for "минут" after n:
// 1, 21, 31 take "у"; 2-4, 22-24 take "ы"; everything else, including 11-14, takes none.
func PluralMinutes(n int) string {
	if n < 0 {
		n = -n
	}
	if r := n % 100; r >= 11 && r <= 14 {
		return ""
	}
	switch n % 10 {
	case 1:
		return "у"
	case 2, 3, 4:
		return "ы"
	default:
		return ""
	}
}

// Caption holds what a notification caption is built from.
type Caption struct {
	Creator     db.Creator
	Video       holodex.Video
	Now         time.Time
	UTCOffset   time.Duration
	OffsetLabel string
}

// Minutes is the whole number of minutes until the stream becomes available.
func (c Caption) Minutes() int {
	return int(availableAt(c.Video).Sub(c.Now) / time.Minute)
}

// LocalStart is the availability time shifted into the display offset.
func (c Caption) LocalStart() time.Time {
	return availableAt(c.Video).UTC().Add(c.UTCOffset)
}

// Text renders the MarkdownV2 caption sent with the thumbnail.
func (c Caption) Text() string {
	m := c.Minutes()
	local := c.LocalStart()
	return fmt.Sprintf("Стрим %s начнется через \\~%d минут%s\n\nНазвание: %s\n\n[▶️ Ссылка на стрим](%s)\nНачало: %02d:%02d \\(%s\\)",
		tgbot.EscapeMarkdown(c.Creator.DisplayName()),
		m, PluralMinutes(m),
		tgbot.EscapeMarkdown(c.Video.Title),
		WatchURL(c.Video.ID),
		local.Hour(), local.Minute(),
		tgbot.EscapeMarkdown(c.OffsetLabel),
	)
}

func availableAt(v holodex.Video) time.Time {
	if v.AvailableAt.IsZero() {
		return v.StartScheduled
	}
	return v.AvailableAt
}

// Gate keeps the candidates that are about to start: a scheduled start that is present
// and not in the past, and an availability time less than lead away from now.
func Gate(videos []holodex.Video, now time.Time, lead time.Duration) []holodex.Video {
	out := make([]holodex.Video, 0, len(videos))
	for _, v := range videos {
		if v.StartScheduled.IsZero() || v.StartScheduled.Before(now) {
			continue
		}
		if availableAt(v).Sub(now) >= lead {
			continue
		}
		out = append(out, v)
	}
	return out
}
