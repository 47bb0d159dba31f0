package services

import (
	"context"
	"fmt"

	"fluxquiz/errs"

	"github.com/redis/go-redis/v9"
)

const allTimeLeaderboardKey = "leaderboard:alltime"

// LeaderboardService keeps the all-time points ranking in a redis sorted
// set, fed by every durable result write.
type LeaderboardService struct {
	redis *redis.Client
}

func NewLeaderboardService(client *redis.Client) *LeaderboardService {
	return &LeaderboardService{redis: client}
}

type AllTimeEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

func (s *LeaderboardService) Bump(username string, points int) error {
	if username == "" || points <= 0 {
		return nil
	}
	err := s.redis.ZIncrBy(context.Background(), allTimeLeaderboardKey, float64(points), username).Err()
	if err != nil {
		return fmt.Errorf("bump leaderboard: %w", err)
	}
	return nil
}

// Top returns the highest-scoring users, best first.
func (s *LeaderboardService) Top(n int) ([]AllTimeEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(context.Background(), allTimeLeaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "failed to read leaderboard", err)
	}

	entries := make([]AllTimeEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, AllTimeEntry{
			Username: z.Member,
			Score:    int(z.Score),
		})
	}
	return entries, nil
}
