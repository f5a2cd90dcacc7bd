package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/service"

	"go.uber.org/zap"
)

func newSessions(f *fixture) *service.Sessions {
	return service.NewSessions(f.cat, f.store, f.index, f.events, f.metrics, zap.NewNop())
}

func TestSessions_RestoresDraftOnFirstUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service("u1")
	completeDraft(t, svc)

	sessions := newSessions(f)
	err := sessions.Do(ctx, "u1", func(s *service.AssessmentService) error {
		if s.Assessment() == nil || s.Assessment().ID != svc.Assessment().ID {
			return fmt.Errorf("draft not restored: %+v", s.Assessment())
		}
		if _, ok := s.GetAnswer("q1"); !ok {
			return errors.New("answer not restored")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sessions.Len() != 1 {
		t.Errorf("expected 1 session, got %d", sessions.Len())
	}
}

func TestSessions_RetryRestoreAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := newSessions(f)

	f.store.setFail(failOn("get", "draft-state:"))
	called := false
	err := sessions.Do(ctx, "u1", func(*service.AssessmentService) error { called = true; return nil })
	var pe *domain.ErrPersistence
	if !errors.As(err, &pe) || called {
		t.Fatalf("expected ErrPersistence before fn runs, got %v (called=%v)", err, called)
	}

	f.store.setFail(nil)
	if err := sessions.Do(ctx, "u1", func(*service.AssessmentService) error { return nil }); err != nil {
		t.Fatalf("restore must be retried: %v", err)
	}
}

func TestSessions_SerializesPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := newSessions(f)

	if err := sessions.Do(ctx, "u1", func(s *service.AssessmentService) error {
		_, err := s.SetCompany(ctx, fullCompany(200))
		return err
	}); err != nil {
		t.Fatal(err)
	}

	ids := []string{"q1", "q2", "q3", "q4", "q5"}
	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*2)
	for _, id := range ids {
		for _, user := range []string{"u1", "u2"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- sessions.Do(ctx, user, func(s *service.AssessmentService) error {
					if s.Assessment() == nil {
						return nil
					}
					_, err := s.SetAnswer(ctx, id, domain.StringValue("ok"), nil)
					return err
				})
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent SetAnswer: %v", err)
		}
	}

	_ = sessions.Do(ctx, "u1", func(s *service.AssessmentService) error {
		if len(s.Answers()) != len(ids) {
			t.Errorf("expected %d answers, got %d", len(ids), len(s.Answers()))
		}
		if s.Progress() != 100 {
			t.Errorf("expected progress 100, got %d", s.Progress())
		}
		return nil
	})
}

func TestSessions_EvictIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := newSessions(f)

	if err := sessions.Do(ctx, "u1", func(s *service.AssessmentService) error {
		_, err := s.SetCompany(ctx, fullCompany(10))
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Do(ctx, "u2", func(*service.AssessmentService) error { return nil }); err != nil {
		t.Fatal(err)
	}

	if n := sessions.Evict(time.Hour); n != 0 || sessions.Len() != 2 {
		t.Fatalf("recent sessions must stay: evicted=%d len=%d", n, sessions.Len())
	}
	if n := sessions.Evict(0); n != 2 || sessions.Len() != 0 {
		t.Fatalf("expected both sessions evicted: evicted=%d len=%d", n, sessions.Len())
	}

	// the draft comes back from the store
	err := sessions.Do(ctx, "u1", func(s *service.AssessmentService) error {
		if s.Assessment() == nil || s.Company() == nil {
			return errors.New("draft not restored after eviction")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSessions_EvictKeepsBusySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := newSessions(f)

	entered := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- sessions.Do(ctx, "u1", func(*service.AssessmentService) error {
			close(entered)
			<-done
			return nil
		})
	}()

	<-entered
	if n := sessions.Evict(0); n != 0 || sessions.Len() != 1 {
		t.Errorf("busy session evicted: evicted=%d len=%d", n, sessions.Len())
	}
	close(done)
	if err := <-finished; err != nil {
		t.Fatal(err)
	}
	if n := sessions.Evict(0); n != 1 {
		t.Errorf("expected idle session evicted, got %d", n)
	}
}

func TestSessions_StartEviction(t *testing.T) {
	f := newFixture(t)
	sessions := newSessions(f)
	t.Cleanup(sessions.Close)

	if err := sessions.Do(context.Background(), "u1", func(*service.AssessmentService) error { return nil }); err != nil {
		t.Fatal(err)
	}
	sessions.StartEviction(5*time.Millisecond, time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected idle session to be evicted, len=%d", sessions.Len())
	}
}
