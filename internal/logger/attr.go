package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func ContentItemID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("content_item_id", id)
}

func PublishJobID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("publish_job_id", id)
}

func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

func Platform(name string) slog.Attr {
	return slog.String("platform", name)
}

func Attempt(n, max int) slog.Attr {
	return slog.Group("attempt", slog.Int("number", n), slog.Int("max", max))
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}
