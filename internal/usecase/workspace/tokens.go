package workspace

import (
	"context"
	"fmt"
	"time"

	"coach-nudge-bot/internal/domain"
)

const tokenTTL = 5 * time.Minute

// Resolver отдаёт bot-токен воркспейса по team id. Токены читаются из БД и
// кэшируются с коротким TTL: разные получатели живут в разных воркспейсах,
// и диспетчер дергает резолвер на каждого.
type Resolver struct {
	workspaces domain.WorkspaceRepo
	cache      domain.Cache
}

// NewResolver создаёт резолвер токенов.
func NewResolver(workspaces domain.WorkspaceRepo, cache domain.Cache) *Resolver {
	return &Resolver{workspaces: workspaces, cache: cache}
}

// BotToken возвращает токен воркспейса.
func (r *Resolver) BotToken(ctx context.Context, teamID string) (string, error) {
	key := "workspace_token:" + teamID
	if r.cache != nil {
		if cached, err := r.cache.Get(key); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	ws, err := r.workspaces.GetWorkspace(ctx, teamID)
	if err != nil {
		return "", fmt.Errorf("получение воркспейса: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Set(key, []byte(ws.BotToken), tokenTTL)
	}
	return ws.BotToken, nil
}
