package command

import (
	"errors"
	"reflect"
	"testing"

	"film_department_bot/internal/domain/message"
)

func fixed(text string) Handler {
	return func(u message.Update) (message.Reply, bool) {
		return message.NewReply(u.ChatID, text), true
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("start", "Welcome", fixed("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, ok := r.Resolve("start")
	if !ok {
		t.Fatal("expected start to resolve")
	}
	reply, sent := h(message.Update{ChatID: 42})
	if !sent || reply.Text != "hi" || reply.ChatID != 42 {
		t.Errorf("unexpected reply %+v (sent=%v)", reply, sent)
	}
}

func TestRegistry_ResolveIsCaseSensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("start", "", fixed("hi"))

	if _, ok := r.Resolve("Start"); ok {
		t.Error("expected Start not to resolve")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("expected missing not to resolve")
	}
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	r := NewRegistry()
	first := fixed("first")
	if err := r.Register("start", "", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := r.Register("start", "", fixed("second"))
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand, got %v", err)
	}

	h, _ := r.Resolve("start")
	reply, _ := h(message.Update{ChatID: 1})
	if reply.Text != "first" {
		t.Errorf("expected first registration to survive, got %q", reply.Text)
	}
}

func TestRegistry_RegisterAllIsAtomic(t *testing.T) {
	r := NewRegistry()
	r.Register("help", "", fixed("help"))

	err := r.RegisterAll([]Entry{
		{Name: "start", Handler: fixed("a")},
		{Name: "content", Handler: fixed("b")},
		{Name: "start", Handler: fixed("c")},
	})
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected registry untouched with 1 entry, got %d", r.Len())
	}
	if _, ok := r.Resolve("start"); ok {
		t.Error("start must not be registered after a rejected set")
	}

	err = r.RegisterAll([]Entry{{Name: "help", Handler: fixed("again")}})
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand against existing entry, got %v", err)
	}
}

func TestRegistry_InvalidEntries(t *testing.T) {
	tests := []Entry{
		{Name: "", Handler: fixed("x")},
		{Name: "two words", Handler: fixed("x")},
		{Name: "cmd@bot", Handler: fixed("x")},
		{Name: "nohandler"},
	}
	for _, e := range tests {
		r := NewRegistry()
		if err := r.RegisterAll([]Entry{e}); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("entry %+v: expected ErrInvalidCommand, got %v", e.Name, err)
		}
	}
}

func TestRegistry_Sealed(t *testing.T) {
	r := NewRegistry()
	r.Register("start", "", fixed("hi"))
	r.Seal()

	if err := r.Register("late", "", fixed("x")); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected ErrRegistrySealed, got %v", err)
	}
	if !r.Sealed() {
		t.Error("expected Sealed() to be true")
	}
	if _, ok := r.Resolve("start"); !ok {
		t.Error("sealed registry must still resolve")
	}
}

func TestRegistry_NamesAndEntries(t *testing.T) {
	r := NewRegistry()
	r.Register("start", "s", fixed("1"))
	r.Register("help", "h", fixed("2"))
	r.Register("content", "c", fixed("3"))

	if got, want := r.Names(), []string{"content", "help", "start"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	var order []string
	for _, e := range r.Entries() {
		order = append(order, e.Name)
	}
	if want := []string{"start", "help", "content"}; !reflect.DeepEqual(order, want) {
		t.Errorf("Entries() order = %v, want %v", order, want)
	}
}
