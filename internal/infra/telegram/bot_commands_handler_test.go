package telegram

import (
	"errors"
	"strings"
	"testing"

	"film_department_bot/internal/domain/command"
	"film_department_bot/internal/domain/message"
)

func registeredCatalog(t *testing.T) *command.Registry {
	t.Helper()
	reg := command.NewRegistry()
	if err := RegisterBotCommands(reg, DefaultCatalog(), testEntry()); err != nil {
		t.Fatalf("RegisterBotCommands: %v", err)
	}
	reg.Seal()
	return reg
}

func run(t *testing.T, reg *command.Registry, name string) message.Reply {
	t.Helper()
	h, ok := reg.Resolve(name)
	if !ok {
		t.Fatalf("/%s not registered", name)
	}
	reply, send := h(message.Update{ID: 1, ChatID: 42, Text: "/" + name})
	if !send {
		t.Fatalf("/%s produced no reply", name)
	}
	if reply.ChatID != 42 {
		t.Errorf("/%s replied to chat %d", name, reply.ChatID)
	}
	return reply
}

func TestRegisterBotCommands_Order(t *testing.T) {
	reg := registeredCatalog(t)

	var names []string
	for _, e := range reg.Entries() {
		names = append(names, e.Name)
	}
	want := "start help content contact chitti_video kingfisher_video amrutha_video"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("entries = %q, want %q", got, want)
	}
}

func TestStartAndHelpListOtherCommands(t *testing.T) {
	reg := registeredCatalog(t)

	start := run(t, reg, "start").Text
	if !strings.HasPrefix(start, "🎬 Welcome to the Film Making Department 🎬\n\n") {
		t.Errorf("unexpected welcome header: %q", start)
	}
	if !strings.Contains(start, "/help - Contact my team for more info") || !strings.Contains(start, "/amrutha_video - Amrutha cover song 🎵") {
		t.Errorf("welcome text misses commands: %q", start)
	}
	if strings.Contains(start, "/start") {
		t.Errorf("welcome text should not list /start itself: %q", start)
	}

	help := run(t, reg, "help").Text
	if !strings.Contains(help, "/start - Restart the bot") || strings.Contains(help, "/help") {
		t.Errorf("unexpected help text: %q", help)
	}
}

func TestLinkAndContactCommands(t *testing.T) {
	reg := registeredCatalog(t)

	if got := run(t, reg, "chitti_video").Text; got != "🎶 Chitti Cover Song: https://www.youtube.com/watch?v=ro77dYAYmGM" {
		t.Errorf("unexpected chitti reply %q", got)
	}
	if got := run(t, reg, "content").Text; !strings.Contains(got, "https://www.youtube.com/@localtouringtalkiesltt4999") {
		t.Errorf("unexpected content reply %q", got)
	}
	if got := run(t, reg, "contact").Text; !strings.Contains(got, "9542862232") {
		t.Errorf("unexpected contact reply %q", got)
	}
}

func TestRegisterBotCommands_CustomPrefixInLists(t *testing.T) {
	reg := command.NewRegistry()
	catalog := DefaultCatalog()
	catalog.Prefix = "!"
	if err := RegisterBotCommands(reg, catalog, testEntry()); err != nil {
		t.Fatalf("RegisterBotCommands: %v", err)
	}
	if got := run(t, reg, "help").Text; !strings.Contains(got, "!start - Restart the bot") {
		t.Errorf("help should use the configured prefix: %q", got)
	}
}

func TestRegisterBotCommands_Duplicate(t *testing.T) {
	reg := command.NewRegistry()
	reg.Register("start", "mine", func(u message.Update) (message.Reply, bool) { return message.NewReply(u.ChatID, "mine"), true })

	err := RegisterBotCommands(reg, DefaultCatalog(), testEntry())
	if !errors.Is(err, command.ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand, got %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("failed registration must not add anything, registry has %d entries", reg.Len())
	}
}
