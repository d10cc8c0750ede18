package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type NominatimGeocoder struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	Client       *http.Client
	Limiter      *rate.Limiter

	once  sync.Once
	mu    sync.Mutex
	cache map[string]Result
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) init() {
	g.once.Do(func() {
		if g.Client == nil {
			g.Client = &http.Client{Timeout: 10 * time.Second}
		}
		if g.BaseURL == "" {
			g.BaseURL = "https://nominatim.openstreetmap.org"
		}
		if g.UserAgent == "" {
			g.UserAgent = "sos-unifio-dispatch"
		}
		if g.CountryCodes == "" {
			g.CountryCodes = "br"
		}
		// public instance policy: at most one request per second
		if g.Limiter == nil {
			g.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
		}
		g.cache = map[string]Result{}
	})
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (Result, error) {
	g.init()

	g.mu.Lock()
	cached, ok := g.cache[query]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	if err := g.Limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", g.CountryCodes)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Result{}, err
	}
	result, err := parseNominatimItems(items)
	if err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	g.cache[query] = result
	g.mu.Unlock()
	return result, nil
}

func parseNominatimItems(items []nominatimItem) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return Result{}, err
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return Result{}, err
	}
	if lat == 0 && lon == 0 && items[0].DisplayName == "" {
		return Result{}, ErrNotFound
	}
	return Result{
		Lat:         lat,
		Lon:         lon,
		DisplayName: items[0].DisplayName,
		Confidence:  items[0].Importance,
	}, nil
}
