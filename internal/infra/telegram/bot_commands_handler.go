// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"film_department_bot/internal/domain/command"
	"film_department_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
)

// LinkCommand is a command that answers with a single titled link.
type LinkCommand struct {
	Name        string
	Description string // Shown in /start, /help and the platform menu
	Title       string
	URL         string
}

// Catalog is the bot's content. It is plain data; swapping it changes what the
// bot says without touching routing.
type Catalog struct {
	Prefix        string
	WelcomeHeader string
	HelpHeader    string
	StartHint     string // Description of /start as listed in /help
	HelpHint      string // Description of /help as listed in /start
	ContactHint   string
	ContactText   string
	Links         []LinkCommand
}

func DefaultCatalog() Catalog {
	return Catalog{
		Prefix:        command.DefaultPrefix,
		WelcomeHeader: "🎬 Welcome to the Film Making Department 🎬",
		HelpHeader:    "💡 Help Center 💡",
		StartHint:     "Restart the bot",
		HelpHint:      "Contact my team for more info",
		ContactHint:   "Reach out to my team 📞 9542862232",
		ContactText:   "📞 Call my team at 9542862232",
		Links: []LinkCommand{
			{Name: "content", Description: "View sample direction styles", Title: "🎥 Check out our playlists", URL: "https://www.youtube.com/@localtouringtalkiesltt4999"},
			{Name: "chitti_video", Description: "Chitti cover song 🎶", Title: "🎶 Chitti Cover Song", URL: "https://www.youtube.com/watch?v=ro77dYAYmGM"},
			{Name: "kingfisher_video", Description: "Kingfisher short film 🎥", Title: "🎬 Kingfisher Short Film", URL: "https://www.youtube.com/watch?v=6N10zpHvS9I"},
			{Name: "amrutha_video", Description: "Amrutha cover song 🎵", Title: "🎵 Amrutha Cover Song", URL: "https://www.youtube.com/watch?v=lIo46bYftZE"},
		},
	}
}

// RegisterBotCommands registers the catalog's commands in one atomic batch.
// /start and /help list the other commands from the registry when invoked, so
// anything registered later during startup shows up too.
func RegisterBotCommands(registry *command.Registry, catalog Catalog, baseLogger *logrus.Entry) error {
	logCtx := baseLogger.WithField("handler_group", "catalog")
	if catalog.Prefix == "" {
		catalog.Prefix = command.DefaultPrefix
	}

	entries := []command.Entry{
		{
			Name:        "start",
			Description: catalog.StartHint,
			Handler: func(u message.Update) (message.Reply, bool) {
				logCtx.WithFields(logrus.Fields{"command": "/start", "chat_id": u.ChatID}).Debug("Processing /start command")
				return message.NewReply(u.ChatID, commandList(registry, catalog, catalog.WelcomeHeader, "start")), true
			},
		},
		{
			Name:        "help",
			Description: catalog.HelpHint,
			Handler: func(u message.Update) (message.Reply, bool) {
				logCtx.WithFields(logrus.Fields{"command": "/help", "chat_id": u.ChatID}).Debug("Processing /help command")
				return message.NewReply(u.ChatID, commandList(registry, catalog, catalog.HelpHeader, "help")), true
			},
		},
	}

	for _, link := range catalog.Links {
		entries = append(entries, command.Entry{
			Name:        link.Name,
			Description: link.Description,
			Handler:     linkHandler(link, logCtx),
		})
	}

	// Menus list /contact right after /content.
	if catalog.ContactText != "" {
		contact := command.Entry{
			Name:        "contact",
			Description: catalog.ContactHint,
			Handler: func(u message.Update) (message.Reply, bool) {
				logCtx.WithFields(logrus.Fields{"command": "/contact", "chat_id": u.ChatID}).Debug("Processing /contact command")
				return message.NewReply(u.ChatID, catalog.ContactText), true
			},
		}
		at := len(entries)
		if len(catalog.Links) > 0 {
			at = 3
		}
		entries = append(entries[:at], append([]command.Entry{contact}, entries[at:]...)...)
	}

	if err := registry.RegisterAll(entries); err != nil {
		return fmt.Errorf("failed to register bot commands: %w", err)
	}
	logCtx.WithField("count", len(entries)).Info("Bot commands registered")
	return nil
}

func linkHandler(link LinkCommand, logCtx *logrus.Entry) command.Handler {
	text := fmt.Sprintf("%s: %s", link.Title, link.URL)
	return func(u message.Update) (message.Reply, bool) {
		logCtx.WithFields(logrus.Fields{"command": "/" + link.Name, "chat_id": u.ChatID}).Debug("Processing link command")
		return message.NewReply(u.ChatID, text), true
	}
}

// commandList renders a header followed by one line per registered command,
// skipping the command that asked for the list.
func commandList(registry *command.Registry, catalog Catalog, header, self string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	first := true
	for _, e := range registry.Entries() {
		if e.Name == self {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		first = false
		b.WriteString(catalog.Prefix)
		b.WriteString(e.Name)
		if e.Description != "" {
			b.WriteString(" - ")
			b.WriteString(e.Description)
		}
	}
	return b.String()
}
