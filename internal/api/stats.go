// Package api holds the outbound clients for the two schedule sources. Wire
// shapes live here; everything past the service boundary works on domain
// structs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"hoopsync/internal/config"
	"hoopsync/internal/domain"

	"github.com/valyala/fasthttp"
)

// StatsClient fetches schedules and box scores from the stats provider. Its
// numeric team and player ids are the canonical ids everything else resolves
// to.
type StatsClient struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
}

func NewStatsClient(cfg *config.Config) *StatsClient {
	return &StatsClient{
		baseURL: cfg.StatsAPIBaseURL,
		apiKey:  cfg.StatsAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

const statsDateLayout = "2006-01-02"

type scheduleResponse struct {
	Data []struct {
		GameID      string `json:"game_id"`
		GameDate    string `json:"game_date"`
		GameTimeUTC string `json:"game_time_utc"`
		HomeTeamID  int64  `json:"home_team_id"`
		AwayTeamID  int64  `json:"away_team_id"`
	} `json:"data"`
}

// Schedule returns the games between two dates, inclusive.
func (c *StatsClient) Schedule(ctx context.Context, from, to time.Time) ([]domain.ScheduleGame, error) {
	reqURL := fmt.Sprintf("%s/v1/schedule?start=%s&end=%s",
		c.baseURL, from.Format(statsDateLayout), to.Format(statsDateLayout))

	resp, err := doRequest[scheduleResponse](ctx, c.client, reqURL, c.apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}

	games := make([]domain.ScheduleGame, 0, len(resp.Data))
	for _, row := range resp.Data {
		gameDate, err := time.Parse(statsDateLayout, row.GameDate)
		if err != nil {
			return nil, fmt.Errorf("bad game date %q for game %s: %w", row.GameDate, row.GameID, err)
		}
		game := domain.ScheduleGame{
			GameID:     row.GameID,
			GameDate:   gameDate,
			HomeTeamID: row.HomeTeamID,
			AwayTeamID: row.AwayTeamID,
		}
		if row.GameTimeUTC != "" {
			if tip, err := time.Parse(time.RFC3339, row.GameTimeUTC); err == nil {
				game.StartTime = &tip
			}
		}
		games = append(games, game)
	}
	return games, nil
}

type playerStatsResponse struct {
	Data []struct {
		PlayerID   int64  `json:"player_id"`
		PlayerName string `json:"player_name"`
		TeamID     int64  `json:"team_id"`
		TeamAbbr   string `json:"team_abbreviation"`
		Position   string `json:"position"`
	} `json:"data"`
}

// PlayerStats returns the box-score player rows for one game date.
func (c *StatsClient) PlayerStats(ctx context.Context, date time.Time) ([]domain.PlayerStatLine, error) {
	reqURL := fmt.Sprintf("%s/v1/player-stats?date=%s",
		c.baseURL, url.QueryEscape(date.Format(statsDateLayout)))

	resp, err := doRequest[playerStatsResponse](ctx, c.client, reqURL, c.apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player stats: %w", err)
	}

	lines := make([]domain.PlayerStatLine, 0, len(resp.Data))
	for _, row := range resp.Data {
		lines = append(lines, domain.PlayerStatLine{
			PlayerID:   row.PlayerID,
			PlayerName: row.PlayerName,
			TeamID:     row.TeamID,
			TeamAbbr:   row.TeamAbbr,
			Position:   row.Position,
		})
	}
	return lines, nil
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, reqURL, apiKey string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(reqURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if apiKey != "" {
		req.Header.Set("Authorization", apiKey)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
