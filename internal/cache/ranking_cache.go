package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RankingCache keeps each application's applicants ordered by their best
// percentage in a Redis ZSET
type RankingCache interface {
	RecordScore(ctx context.Context, appID string, applicantID int64, percent float64) error
	GetTop(ctx context.Context, appID string, limit int) ([]RankingEntry, error)
	GetRank(ctx context.Context, appID string, applicantID int64) (int64, error)
	DeleteApp(ctx context.Context, appID string) error
}

// RankingEntry is one applicant's position
type RankingEntry struct {
	ApplicantID int64   `json:"applicant_id"`
	Percent     float64 `json:"percent"`
	Rank        int     `json:"rank"`
}

type rankingCache struct {
	client *redis.Client
}

// NewRankingCache creates a new ranking cache
func NewRankingCache(client *redis.Client) RankingCache {
	return &rankingCache{
		client: client,
	}
}

func (c *rankingCache) key(appID string) string {
	return fmt.Sprintf("app:%s:ranking", appID)
}

// RecordScore stores percent unless the applicant already has a higher one
func (c *rankingCache) RecordScore(ctx context.Context, appID string, applicantID int64, percent float64) error {
	return c.client.ZAddGT(ctx, c.key(appID), redis.Z{
		Score:  percent,
		Member: strconv.FormatInt(applicantID, 10),
	}).Err()
}

func (c *rankingCache) GetTop(ctx context.Context, appID string, limit int) ([]RankingEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(appID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]RankingEntry, 0, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, RankingEntry{
			ApplicantID: id,
			Percent:     z.Score,
			Rank:        i + 1,
		})
	}
	return entries, nil
}

// GetRank returns the 1-based rank, or -1 when the applicant is unranked
func (c *rankingCache) GetRank(ctx context.Context, appID string, applicantID int64) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(appID), strconv.FormatInt(applicantID, 10)).Result()
	if err == redis.Nil {
		return -1, nil
	}
	return rank + 1, err // 1-indexed
}

func (c *rankingCache) DeleteApp(ctx context.Context, appID string) error {
	return c.client.Del(ctx, c.key(appID)).Err()
}
