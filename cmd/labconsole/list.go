package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/credential"
	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/notify"
	"github.com/nhle/labconsole/internal/store"
)

func runList(cfg *model.AppConfig, args []string, w io.Writer) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	archived := flags.Bool("archived", false, "show archived notifications")
	offline := flags.Bool("offline", false, "read the local mirror instead of the backend")
	limit := flags.IntP("limit", "n", 0, "show at most this many notifications")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.TimeoutSec+5)*time.Second)
	defer cancel()

	if *offline {
		return listOffline(ctx, cfg.Cache.DBPath, *archived, *limit, w)
	}

	log := logger.New(listLogOptions(cfg))
	defer log.Sync()

	ring, err := credential.Open()
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.API.BaseURL, ring, time.Duration(cfg.API.TimeoutSec)*time.Second, cfg.API.MaxRetries)
	notifications := notify.New(notify.Options{Backend: client, Sessions: ring, Logger: log})

	if err := notifications.Refresh(ctx); err != nil {
		if api.IsAuthError(err) {
			return fmt.Errorf("not signed in, run `labconsole login`")
		}
		return fmt.Errorf("fetching notifications: %w", err)
	}

	ns := notifications.Inbox()
	if *archived {
		ns = notifications.Archived()
	}
	printNotifications(w, clip(ns, *limit), notifications.UnreadCount())
	return nil
}

// listLogOptions keeps list logging in the log file; main reports the
// returned error on stderr.
func listLogOptions(cfg *model.AppConfig) logger.Options {
	return logger.Options{FilePath: cfg.Log.File, Dev: cfg.Log.Dev}
}

func listOffline(ctx context.Context, dbPath string, archived bool, limit int, w io.Writer) error {
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.LastSync(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Fprintln(w, "Nothing mirrored yet; run `labconsole watch` first.")
		return nil
	}

	ns, err := db.GetNotifications(ctx, store.NotificationFilter{Archived: &archived, Limit: limit})
	if err != nil {
		return err
	}
	unread, err := db.CountUnread(ctx)
	if err != nil {
		return err
	}

	color.New(color.Faint).Fprintf(w, "mirrored %s\n", info.SyncedAt.Local().Format(time.DateTime))
	printNotifications(w, ns, unread)
	return nil
}

func clip(ns []model.Notification, limit int) []model.Notification {
	if limit > 0 && len(ns) > limit {
		return ns[:limit]
	}
	return ns
}

var typeColors = map[model.NotificationType]*color.Color{
	model.NotificationInfo:    color.New(color.FgBlue),
	model.NotificationSuccess: color.New(color.FgGreen),
	model.NotificationWarning: color.New(color.FgYellow),
	model.NotificationError:   color.New(color.FgRed, color.Bold),
}

// printNotifications writes one line per notification, newest first,
// followed by its message when present.
func printNotifications(w io.Writer, ns []model.Notification, unread int) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%d unread\n", unread)
	if len(ns) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}

	faint := color.New(color.Faint)
	for _, n := range ns {
		marker := " "
		if n.Unread() {
			marker = "●"
		}
		c, ok := typeColors[n.Type]
		if !ok {
			c = typeColors[model.NotificationInfo]
		}

		fmt.Fprintf(w, "%s %s %s  %s\n",
			marker,
			c.Sprintf("%-7s", n.Type),
			n.Title,
			faint.Sprint(n.Timestamp.Local().Format(time.DateTime)),
		)
		if n.Message != "" {
			fmt.Fprintf(w, "          %s\n", n.Message)
		}
	}
}
