package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default Open-Meteo endpoints.
const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultMarineURL   = "https://marine-api.open-meteo.com/v1/marine"
)

// OpenMeteo is a Provider backed by the Open-Meteo HTTP API.  Outbound
// calls share one token bucket so a burst of refresh jobs cannot exceed
// the upstream fair-use limit.
type OpenMeteo struct {
	ForecastURL string
	MarineURL   string
	HTTP        *http.Client
	limiter     *rate.Limiter
}

// NewOpenMeteo returns a client allowing rps requests per second.
func NewOpenMeteo(rps float64, burst int) *OpenMeteo {
	if burst < 1 {
		burst = 1
	}
	return &OpenMeteo{
		ForecastURL: DefaultForecastURL,
		MarineURL:   DefaultMarineURL,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		Code        int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		Max           []float64 `json:"temperature_2m_max"`
		Min           []float64 `json:"temperature_2m_min"`
		Precipitation []int     `json:"precipitation_probability_max"`
	} `json:"daily"`
}

type marineResponse struct {
	Current struct {
		WaveHeight float64 `json:"wave_height"`
		WavePeriod float64 `json:"wave_period"`
	} `json:"current"`
}

// Forecast implements Provider.
func (o *OpenMeteo) Forecast(ctx context.Context, p Point) (Current, []Day, error) {
	q := o.query(p)
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	q.Set("forecast_days", "5")

	var resp forecastResponse
	if err := o.get(ctx, o.ForecastURL, q, &resp); err != nil {
		return Current{}, nil, err
	}

	d := resp.Daily
	n := min(len(d.Time), len(d.Max), len(d.Min))
	days := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		day := Day{Date: d.Time[i], Min: d.Min[i], Max: d.Max[i]}
		if i < len(d.Precipitation) {
			day.Precipitation = d.Precipitation[i]
		}
		days = append(days, day)
	}
	cur := Current{Temperature: resp.Current.Temperature, WindSpeed: resp.Current.WindSpeed, Code: resp.Current.Code}
	return cur, days, nil
}

// Marine implements Provider.
func (o *OpenMeteo) Marine(ctx context.Context, p Point) (*Marine, error) {
	q := o.query(p)
	q.Set("current", "wave_height,wave_period")

	var resp marineResponse
	if err := o.get(ctx, o.MarineURL, q, &resp); err != nil {
		return nil, err
	}
	return &Marine{WaveHeight: resp.Current.WaveHeight, WavePeriod: resp.Current.WavePeriod}, nil
}

func (o *OpenMeteo) query(p Point) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', 4, 64))
	if p.Timezone != "" {
		q.Set("timezone", p.Timezone)
	}
	return q
}

func (o *OpenMeteo) get(ctx context.Context, base string, q url.Values, out any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProvider, base, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}
	return nil
}
