// Package nasa fetches daily surface irradiance from the NASA POWER API.
package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/metrics"
)

const (
	// SourceNASA names this source in audit records.
	SourceNASA = "nasa-power"

	parameter = "ALLSKY_SFC_SW_DWN"
	community = "RE"
)

// Config holds client parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	DefaultGHI float64
	CacheTTL   time.Duration
}

// Client implements domain.IrradianceSource. Any failure to obtain a value
// yields Config.DefaultGHI with Fallback set.
type Client struct {
	baseURL    string
	defaultGHI float64
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewClient creates a NASA POWER client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		defaultGHI: cfg.DefaultGHI,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        SourceNASA,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		}),
		cache:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger.With(slog.String("component", "nasa")),
	}
}

// powerResponse is the subset of the POWER point response the client reads.
type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// DailyIrradiance implements domain.IrradianceSource.
func (c *Client) DailyIrradiance(ctx context.Context, lat, lon float64, date string) domain.Irradiance {
	key := cacheKey(lat, lon, date)
	if v, ok := c.cache.Get(key); ok {
		metrics.IrradianceRequests.WithLabelValues(SourceNASA, "cache").Inc()
		return domain.Irradiance{GHI: v.(float64), Source: SourceNASA}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, lat, lon, date)
	})
	if err != nil {
		metrics.IrradianceRequests.WithLabelValues(SourceNASA, "fallback").Inc()
		c.logger.WarnContext(ctx, "irradiance fetch failed, using fallback",
			slog.String("date", date),
			slog.Float64("fallback_ghi", c.defaultGHI),
			slog.String("error", err.Error()),
		)
		return domain.Irradiance{GHI: c.defaultGHI, Source: SourceNASA, Fallback: true}
	}

	ghi := res.(float64)
	c.cache.Set(key, ghi, cache.DefaultExpiration)
	metrics.IrradianceRequests.WithLabelValues(SourceNASA, "ok").Inc()
	return domain.Irradiance{GHI: ghi, Source: SourceNASA}
}

func (c *Client) fetch(ctx context.Context, lat, lon float64, date string) (float64, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return 0, err
	}
	stamp := day.Format("20060102")

	q := url.Values{}
	q.Set("parameters", parameter)
	q.Set("community", community)
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("start", stamp)
	q.Set("end", stamp)
	q.Set("format", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("nasa: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("nasa: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("nasa: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload powerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("nasa: decode response: %w", err)
	}
	value, ok := payload.Properties.Parameter[parameter][stamp]
	if !ok {
		return 0, fmt.Errorf("nasa: no %s value for %s", parameter, stamp)
	}
	// POWER marks missing data with -999.
	if value < 0 {
		return 0, errors.New("nasa: fill value returned")
	}
	return value, nil
}

func cacheKey(lat, lon float64, date string) string {
	return fmt.Sprintf("%.4f:%.4f:%s", lat, lon, date)
}
