package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wenda-go/internal/model"
)

func newCacheOnlyRepo(t *testing.T) (*conversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	// 只测缓存路径，不触达 MySQL
	return &conversationRepository{rdb: rdb}, mr
}

func TestRecentHistoryServedFromCache(t *testing.T) {
	repo, mr := newCacheOnlyRepo(t)

	key := historyCacheKey("conv-1")
	want := []model.ChatMessage{
		{Role: model.RoleUser, Content: "问题"},
		{Role: model.RoleAssistant, Content: "回答"},
	}
	for _, m := range want {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		_, err = mr.RPush(key, string(data))
		require.NoError(t, err)
	}

	history, err := repo.RecentHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, want, history)
}

func TestPushToCacheKeepsRecentWindow(t *testing.T) {
	repo, mr := newCacheOnlyRepo(t)

	for i := 0; i < historyCacheLimit+5; i++ {
		err := repo.pushToCache(context.Background(), "conv-1", model.ChatMessage{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("消息 %d", i),
		})
		require.NoError(t, err)
	}

	key := historyCacheKey("conv-1")
	entries, err := mr.List(key)
	require.NoError(t, err)
	require.Len(t, entries, historyCacheLimit, "缓存只保留最近 %d 条", historyCacheLimit)

	// 留下的是最新的一批
	var first model.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &first))
	assert.Equal(t, "消息 5", first.Content)

	ttl := mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, historyCacheTTL)
}

func TestRefillCacheReplacesContents(t *testing.T) {
	repo, mr := newCacheOnlyRepo(t)

	key := historyCacheKey("conv-1")
	_, err := mr.RPush(key, `{"role":"user","content":"旧数据"}`)
	require.NoError(t, err)

	fresh := []model.ChatMessage{
		{Role: model.RoleUser, Content: "新问题"},
		{Role: model.RoleAssistant, Content: "新回答"},
	}
	require.NoError(t, repo.refillCache(context.Background(), "conv-1", fresh))

	history, err := repo.RecentHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, fresh, history)
}
