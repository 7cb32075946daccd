package workspace

import (
	"context"
	"testing"
	"time"

	"coach-nudge-bot/internal/domain"
)

type stubWorkspaceRepo struct {
	calls int
}

func (s *stubWorkspaceRepo) GetWorkspace(_ context.Context, teamID string) (domain.Workspace, error) {
	s.calls++
	if teamID != "T1" {
		return domain.Workspace{}, domain.ErrNotFound
	}
	return domain.Workspace{TeamID: teamID, TeamName: "Acme Coaching", BotToken: "xoxb-acme"}, nil
}

type memCache struct {
	values map[string][]byte
}

func (c *memCache) Once(string, time.Duration, func() error) error { return nil }

func (c *memCache) Set(key string, value []byte, _ time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	c.values[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) {
	if value, ok := c.values[key]; ok {
		return value, nil
	}
	return nil, domain.ErrNotFound
}

func TestBotTokenCaches(t *testing.T) {
	repo := &stubWorkspaceRepo{}
	resolver := NewResolver(repo, &memCache{})

	for i := 0; i < 3; i++ {
		token, err := resolver.BotToken(context.Background(), "T1")
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if token != "xoxb-acme" {
			t.Fatalf("неверный токен: %q", token)
		}
	}
	if repo.calls != 1 {
		t.Fatalf("ожидали один запрос в БД, получили %d", repo.calls)
	}
}

func TestBotTokenWithoutCache(t *testing.T) {
	repo := &stubWorkspaceRepo{}
	resolver := NewResolver(repo, nil)

	if _, err := resolver.BotToken(context.Background(), "T1"); err != nil {
		t.Fatalf("резолвер без кэша должен работать: %v", err)
	}
	if _, err := resolver.BotToken(context.Background(), "T9"); err == nil {
		t.Fatalf("ожидали ошибку для незнакомого воркспейса")
	}
}
