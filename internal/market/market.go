// Package market fetches spot prices from CoinGecko's simple/price endpoint.
//
// When the source fails and simulation is enabled, Prices returns generated
// quotes around each asset's base price and marks the snapshot Simulated.
// That fallback is a designed outcome, not an error.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"barzin/internal/report"
	logx "barzin/pkg/logx"
)

const DefaultURL = "https://api.coingecko.com/api/v3"

type Asset struct {
	Symbol string
	// ID is the CoinGecko coin id.
	ID string
	// Base anchors simulated prices.
	Base float64
}

// DefaultAssets is the report's coin list in display order.
var DefaultAssets = []Asset{
	{Symbol: "BTC", ID: "bitcoin", Base: 76000},
	{Symbol: "ETH", ID: "ethereum", Base: 3400},
	{Symbol: "XRP", ID: "ripple", Base: 0.53},
	{Symbol: "SOL", ID: "solana", Base: 165},
	{Symbol: "BNB", ID: "binancecoin", Base: 580},
}

type Config struct {
	URL      string
	Timeout  time.Duration
	Simulate bool
	Assets   []Asset
}

type Quote struct {
	Symbol    string
	ID        string
	Price     float64
	Change24h float64
}

type Snapshot struct {
	Quotes    []Quote
	Simulated bool
	FetchedAt time.Time
	// Cause is why the live source was not used (simulated snapshots only).
	Cause string
}

// ReportQuotes converts the snapshot for report.PriceTable.
func (s Snapshot) ReportQuotes() []report.Quote {
	out := make([]report.Quote, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		out = append(out, report.Quote{Symbol: q.Symbol, Price: q.Price, Change24h: q.Change24h})
	}
	return out
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time

	rmu sync.Mutex
	rng *rand.Rand
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With(logx.String("comp", "market")),
		now:  time.Now,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Prices returns live quotes, or simulated ones when the source fails and
// simulation is enabled.
func (c *Client) Prices(ctx context.Context) (Snapshot, error) {
	quotes, err := c.Fetch(ctx)
	if err == nil {
		return Snapshot{Quotes: quotes, FetchedAt: c.now()}, nil
	}
	if !c.cfg.Simulate {
		return Snapshot{}, err
	}
	c.log.Warn("market source unavailable; using simulated prices", logx.Err(err))
	s := c.Simulated()
	s.Cause = err.Error()
	return s, nil
}

type simplePrice map[string]struct {
	USD       *float64 `json:"usd"`
	Change24h *float64 `json:"usd_24h_change"`
}

// Fetch queries CoinGecko for every configured asset. A missing coin in the
// response fails the whole fetch.
func (c *Client) Fetch(ctx context.Context) ([]Quote, error) {
	ids := make([]string, 0, len(c.cfg.Assets))
	for _, a := range c.cfg.Assets {
		ids = append(ids, a.ID)
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("coingecko read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	var data simplePrice
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}

	out := make([]Quote, 0, len(c.cfg.Assets))
	var missing []string
	for _, a := range c.cfg.Assets {
		p, ok := data[a.ID]
		if !ok || p.USD == nil {
			missing = append(missing, a.ID)
			continue
		}
		quote := Quote{Symbol: a.Symbol, ID: a.ID, Price: *p.USD}
		if p.Change24h != nil {
			quote.Change24h = *p.Change24h
		}
		out = append(out, quote)
	}
	if len(missing) > 0 {
		return nil, errors.New("coingecko: missing prices for " + strings.Join(missing, ","))
	}
	return out, nil
}

// Simulated generates quotes within ±2% of each base price and a 24h change
// within ±5%.
func (c *Client) Simulated() Snapshot {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	out := make([]Quote, 0, len(c.cfg.Assets))
	for _, a := range c.cfg.Assets {
		price := a.Base * (1 + (c.rng.Float64()*0.04 - 0.02))
		change := c.rng.Float64()*10 - 5
		out = append(out, Quote{
			Symbol:    a.Symbol,
			ID:        a.ID,
			Price:     roundPrice(price),
			Change24h: math.Round(change*100) / 100,
		})
	}
	return Snapshot{Quotes: out, Simulated: true, FetchedAt: c.now()}
}

func roundPrice(v float64) float64 {
	if v >= 1 {
		return math.Round(v*100) / 100
	}
	return math.Round(v*1e8) / 1e8
}
