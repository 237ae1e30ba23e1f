package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"

	"film_department_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeRegistrar struct {
	info    telegram.WebhookInfo
	infoErr error
	setErr  error
	sets    []string
}

func (f *fakeRegistrar) SetWebhook(_ context.Context, url, _ string) error {
	f.sets = append(f.sets, url)
	if f.setErr == nil {
		f.info.URL = url
	}
	return f.setErr
}

func (f *fakeRegistrar) WebhookInfo(context.Context) (telegram.WebhookInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeRegistrar) RemoveWebhook(context.Context) error { return nil }

const hookURL = "https://bot.example.com/abc"

func TestCheckWebhook_Current(t *testing.T) {
	reg := &fakeRegistrar{info: telegram.WebhookInfo{URL: hookURL, PendingUpdateCount: 3}}
	s := NewMaintenanceScheduler(Config{WebhookURL: hookURL}, reg, nil, testLogger())

	if s.CheckWebhook(context.Background()) {
		t.Error("expected no re-registration")
	}
	if len(reg.sets) != 0 {
		t.Errorf("unexpected setWebhook calls: %v", reg.sets)
	}
}

func TestCheckWebhook_Drift(t *testing.T) {
	reg := &fakeRegistrar{info: telegram.WebhookInfo{URL: "", LastErrorMessage: "Connection refused"}}
	s := NewMaintenanceScheduler(Config{WebhookURL: hookURL}, reg, nil, testLogger())

	if !s.CheckWebhook(context.Background()) {
		t.Fatal("expected re-registration")
	}
	if len(reg.sets) != 1 || reg.sets[0] != hookURL {
		t.Errorf("unexpected setWebhook calls: %v", reg.sets)
	}
}

func TestCheckWebhook_Errors(t *testing.T) {
	reg := &fakeRegistrar{infoErr: errors.New("timeout")}
	s := NewMaintenanceScheduler(Config{WebhookURL: hookURL}, reg, nil, testLogger())
	if s.CheckWebhook(context.Background()) {
		t.Error("info failure must not report re-registration")
	}

	reg = &fakeRegistrar{setErr: errors.New("bad webhook")}
	s = NewMaintenanceScheduler(Config{WebhookURL: hookURL}, reg, nil, testLogger())
	if s.CheckWebhook(context.Background()) {
		t.Error("failed re-registration must not be reported as done")
	}
}

type fakePruner struct {
	keep int64
}

func (p *fakePruner) Prune(_ context.Context, keep int64) (int64, error) {
	p.keep = keep
	return 2, nil
}

func TestStart_SchedulesEnabledJobs(t *testing.T) {
	pruner := &fakePruner{}
	s := NewMaintenanceScheduler(Config{
		WebhookCheckSpec: "*/10 * * * *",
		WebhookURL:       hookURL,
		PruneSpec:        "@daily",
		PruneKeep:        1000,
	}, &fakeRegistrar{}, pruner, testLogger())

	jobs, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if jobs != 2 {
		t.Errorf("jobs = %d, want 2", jobs)
	}

	s.PruneJournal(context.Background())
	if pruner.keep != 1000 {
		t.Errorf("prune keep = %d, want 1000", pruner.keep)
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewMaintenanceScheduler(Config{WebhookCheckSpec: "not a cron"}, &fakeRegistrar{}, nil, testLogger())
	if _, err := s.Start(); err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}

func TestStart_NothingEnabled(t *testing.T) {
	s := NewMaintenanceScheduler(Config{WebhookCheckSpec: "*/5 * * * *"}, nil, nil, testLogger())
	jobs, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if jobs != 0 {
		t.Errorf("jobs = %d, want 0", jobs)
	}
}
