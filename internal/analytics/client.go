// Package analytics proxies profile view statistics from the upstream
// analytics pipes. The proxy never fails toward the caller: a missing token,
// an unreachable provider or a malformed response all degrade to a
// zero-valued payload of the expected shape.
package analytics

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/librepage/librepage-back/internal/config"
)

const (
	viewsPipe    = "libre_page_views.json"
	devicePipe   = "libre_device_tracking.json"
	locationPipe = "libre_location_tracking.json"

	FilterLastHour    = "last_hour"
	FilterLast24Hours = "last_24_hours"
)

type (
	Point struct {
		T      string `json:"t"`
		Visits int    `json:"visits"`
	}

	DevicePoint struct {
		Device string `json:"device"`
		Visits int    `json:"visits"`
	}

	LocationPoint struct {
		Country string `json:"country"`
		Visits  int    `json:"visits"`
	}

	pipeResponse struct {
		Data []Point `json:"data"`
	}

	devicePipeResponse struct {
		Data []DevicePoint `json:"data"`
	}

	locationPipeResponse struct {
		Data []LocationPoint `json:"data"`
	}

	Client struct {
		http    *resty.Client
		baseURL string
		token   string
		cache   *ResponseCache
		logger  *zap.SugaredLogger
		now     func() time.Time
	}
)

func NewClient(cfg *config.Config, cache *ResponseCache, logger *zap.SugaredLogger) *Client {
	return &Client{
		http:    resty.New().SetTimeout(10 * time.Second),
		baseURL: cfg.AnalyticsBaseURL,
		token:   cfg.AnalyticsToken,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Views returns the visit series for a handle. filter selects the upstream
// aggregation window and controls timestamp formatting.
func (c *Client) Views(ctx context.Context, handle, filter string) []Point {
	key := "views:" + handle + ":" + filter
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]Point)
	}

	if c.token == "" {
		data := c.zeroViews()
		c.cache.Set(key, data)
		return data
	}

	out := pipeResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":  c.token,
			"filter": filter,
			"handle": "/" + handle,
		}).
		SetResult(&out).
		Get(c.baseURL + "/" + viewsPipe)
	if err != nil || resp.IsError() {
		c.logger.Warnw("analytics views fetch failed, degrading", "err", err)
		return c.zeroViews()
	}

	data := make([]Point, len(out.Data))
	for i, p := range out.Data {
		data[i] = Point{T: formatStamp(p.T, filter), Visits: p.Visits}
	}
	c.cache.Set(key, data)
	return data
}

func (c *Client) Devices(ctx context.Context, handle string) []DevicePoint {
	key := "device:" + handle
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]DevicePoint)
	}

	if c.token == "" {
		data := zeroDevices()
		c.cache.Set(key, data)
		return data
	}

	out := devicePipeResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":  c.token,
			"handle": "/" + handle,
		}).
		SetResult(&out).
		Get(c.baseURL + "/" + devicePipe)
	if err != nil || resp.IsError() {
		c.logger.Warnw("analytics devices fetch failed, degrading", "err", err)
		return zeroDevices()
	}

	c.cache.Set(key, out.Data)
	return out.Data
}

func (c *Client) Locations(ctx context.Context, handle string) []LocationPoint {
	key := "location:" + handle
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]LocationPoint)
	}

	if c.token == "" {
		data := zeroLocations()
		c.cache.Set(key, data)
		return data
	}

	out := locationPipeResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":  c.token,
			"handle": "/" + handle,
		}).
		SetResult(&out).
		Get(c.baseURL + "/" + locationPipe)
	if err != nil || resp.IsError() {
		c.logger.Warnw("analytics locations fetch failed, degrading", "err", err)
		return zeroLocations()
	}

	c.cache.Set(key, out.Data)
	return out.Data
}

// zeroViews yields the placeholder week of empty traffic.
func (c *Client) zeroViews() []Point {
	data := make([]Point, 0, 7)
	today := c.now()
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		data = append(data, Point{T: day.Format("1/2"), Visits: 0})
	}
	return data
}

func zeroDevices() []DevicePoint {
	return []DevicePoint{
		{Device: "Desktop", Visits: 0},
		{Device: "Mobile", Visits: 0},
		{Device: "Tablet", Visits: 0},
	}
}

func zeroLocations() []LocationPoint {
	return []LocationPoint{
		{Country: "Unknown", Visits: 0},
	}
}

// formatStamp renders upstream timestamps as short day labels, or clock
// times for the hourly windows. Unparseable stamps pass through untouched.
func formatStamp(raw, filter string) string {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if filter == FilterLastHour || filter == FilterLast24Hours {
			return ts.Format("3:04 PM")
		}
		return ts.Format("1/2")
	}
	return raw
}
