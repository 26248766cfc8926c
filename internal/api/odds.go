package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hoopsync/internal/config"
	"hoopsync/internal/domain"

	"github.com/valyala/fasthttp"
)

// OddsClient fetches events and prices from the odds aggregator. Event ids
// and team names here share nothing with the stats source.
type OddsClient struct {
	baseURL  string
	apiKey   string
	sportKey string
	regions  string
	client   *fasthttp.Client

	quotaMu sync.RWMutex
	quota   domain.QuotaInfo
}

func NewOddsClient(cfg *config.Config) *OddsClient {
	return &OddsClient{
		baseURL:  cfg.OddsAPIBaseURL,
		apiKey:   cfg.OddsAPIKey,
		sportKey: cfg.OddsSportKey,
		regions:  cfg.OddsRegions,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// GetQuotaInfo returns the allowance seen on the most recent response.
func (c *OddsClient) GetQuotaInfo() domain.QuotaInfo {
	c.quotaMu.RLock()
	defer c.quotaMu.RUnlock()
	return c.quota
}

func (c *OddsClient) updateQuota(resp *fasthttp.Response) {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()

	if used := string(resp.Header.Peek("X-Requests-Used")); used != "" {
		if val, err := strconv.Atoi(used); err == nil {
			c.quota.Used = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Requests-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.quota.Remaining = val
		}
	}
	c.quota.UpdatedAt = time.Now()
}

type oddsEventRow struct {
	ID           string `json:"id"`
	CommenceTime string `json:"commence_time"`
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
	Bookmakers   []struct {
		Key     string `json:"key"`
		Markets []struct {
			Key      string `json:"key"`
			Outcomes []struct {
				Name  string  `json:"name"`
				Price float64 `json:"price"`
				Point float64 `json:"point"`
			} `json:"outcomes"`
		} `json:"markets"`
	} `json:"bookmakers"`
}

// Events returns the upcoming events inside the window, without prices.
func (c *OddsClient) Events(ctx context.Context, from, to time.Time) ([]domain.OddsEvent, error) {
	reqURL := fmt.Sprintf("%s/v4/sports/%s/events?apiKey=%s&commenceTimeFrom=%s&commenceTimeTo=%s",
		c.baseURL, c.sportKey, c.apiKey,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	return c.fetchEvents(ctx, reqURL)
}

// EventOdds returns one event with prices for the requested markets attached.
func (c *OddsClient) EventOdds(ctx context.Context, eventID string, markets []string) (*domain.OddsEvent, error) {
	reqURL := fmt.Sprintf("%s/v4/sports/%s/events/%s/odds?apiKey=%s&regions=%s&markets=%s",
		c.baseURL, c.sportKey, eventID, c.apiKey, c.regions, strings.Join(markets, ","))

	row, err := oddsRequest[oddsEventRow](ctx, c, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds for event %s: %w", eventID, err)
	}
	return convertEvent(*row)
}

func (c *OddsClient) fetchEvents(ctx context.Context, reqURL string) ([]domain.OddsEvent, error) {
	rows, err := oddsRequest[[]oddsEventRow](ctx, c, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]domain.OddsEvent, 0, len(*rows))
	for _, row := range *rows {
		ev, err := convertEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func convertEvent(row oddsEventRow) (*domain.OddsEvent, error) {
	commence, err := time.Parse(time.RFC3339, row.CommenceTime)
	if err != nil {
		return nil, fmt.Errorf("bad commence time %q for event %s: %w", row.CommenceTime, row.ID, err)
	}
	ev := &domain.OddsEvent{
		EventID:      row.ID,
		CommenceTime: commence,
		HomeTeamName: row.HomeTeam,
		AwayTeamName: row.AwayTeam,
	}
	for _, bk := range row.Bookmakers {
		for _, market := range bk.Markets {
			for _, outcome := range market.Outcomes {
				ev.Outcomes = append(ev.Outcomes, domain.OddsOutcome{
					Market:    market.Key,
					Name:      outcome.Name,
					Price:     outcome.Price,
					Point:     outcome.Point,
					Bookmaker: bk.Key,
				})
			}
		}
	}
	return ev, nil
}

func oddsRequest[T any](ctx context.Context, c *OddsClient, reqURL string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(reqURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	c.updateQuota(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
