// Package scraper harvests the michi-no-eki station directory.
package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/metrics"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/ratelimit"
)

const (
	DefaultBaseURL = "https://www.michi-no-eki.jp/"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxPages       = 100
)

// ErrNotFound is returned for pages that answered 404
var ErrNotFound = errors.New("page not found")

// ErrBlocked is returned while the circuit breaker is open
var ErrBlocked = errors.New("circuit breaker open")

// ErrIncomplete matches an IncompleteError
var ErrIncomplete = errors.New("scrape incomplete")

// IncompleteError is returned by Run when some listings or stations could
// not be fetched. Every station that was fetched has still been emitted.
type IncompleteError struct {
	Prefectures int // listings that failed
	Stations    int // detail pages that failed
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("scrape incomplete: %d prefecture listings and %d stations skipped", e.Prefectures, e.Stations)
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

type ScraperConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RequestDelay     time.Duration
	Jitter           time.Duration
	MaxInFlight      int
	UserAgent        string
	HeadlessFallback bool
	// ChromePath overrides chromedp's browser lookup
	ChromePath string
}

type Scraper struct {
	client       *http.Client
	baseURL      *url.URL
	config       ScraperConfig
	limiter      *ratelimit.FetchLimiter
	breaker      *CircuitBreaker
	fetchBrowser func(ctx context.Context, pageURL string) (string, error)
}

// NewScraperWithConfig builds a scraper for the site at config.BaseURL
func NewScraperWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = userAgent
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 1
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Printf("Warning: Failed to create cookie jar: %v", err)
		jar = nil
	}

	s := &Scraper{
		client: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
		},
		baseURL: base,
		config:  config,
		limiter: ratelimit.NewFetchLimiter(config.MaxInFlight, config.RequestDelay, config.Jitter),
		breaker: NewCircuitBreaker(8, time.Hour),
	}
	s.fetchBrowser = s.fetchHTMLWithHeadlessBrowser
	return s, nil
}

// NewFromConfig builds a scraper from the application configuration
func NewFromConfig(cfg *config.Config) (*Scraper, error) {
	sc := cfg.Scraper
	return NewScraperWithConfig(ScraperConfig{
		BaseURL:          sc.BaseURL,
		Timeout:          sc.GetTimeout(),
		MaxRetries:       sc.MaxRetries,
		RetryDelay:       sc.GetRetryDelay(),
		RequestDelay:     sc.GetRequestDelay(),
		Jitter:           sc.GetRequestDelay() / 2,
		MaxInFlight:      sc.ConcurrentLimit,
		UserAgent:        cfg.UserAgent,
		HeadlessFallback: sc.HeadlessFallback,
	})
}

// Breaker exposes the circuit breaker state
func (s *Scraper) Breaker() *CircuitBreaker {
	return s.breaker
}

// applyBrowserHeaders sets browser-like headers
func (s *Scraper) applyBrowserHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func (s *Scraper) backoff(attempt int, base time.Duration) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * base
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

// doRequestWithRetry fetches pageURL with exponential backoff and returns
// the body. 4xx other than 429 is not retried.
func (s *Scraper) doRequestWithRetry(ctx context.Context, pageURL, referer string) (string, error) {
	if !s.breaker.CanProceed() {
		st := s.breaker.Status()
		return "", fmt.Errorf("%w (%d/%d failures)", ErrBlocked, st.Failures, st.Requests)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer s.limiter.Release()

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.backoff(attempt-1, s.config.RetryDelay)
			log.Printf("[Scraper] Retry attempt %d/%d for %s after %v", attempt, s.config.MaxRetries, pageURL, wait)
			if err := sleepContext(ctx, wait); err != nil {
				return "", err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		s.applyBrowserHeaders(req, referer)

		resp, err := s.client.Do(req)
		if err != nil {
			log.Printf("[Scraper] Request failed (attempt %d): %v", attempt+1, err)
			s.breaker.RecordFailure(0)
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body, err := readBody(resp)
			resp.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}
			s.breaker.RecordSuccess()
			return body, nil
		}
		resp.Body.Close()

		log.Printf("[Scraper] Request failed (attempt %d): status %d for %s", attempt+1, resp.StatusCode, pageURL)
		if isBlockingStatus(resp.StatusCode) {
			s.breaker.RecordFailure(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, pageURL)
		}
		lastErr = fmt.Errorf("status code %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if !s.breaker.CanProceed() {
			return "", ErrBlocked
		}
	}

	return "", fmt.Errorf("request failed after %d retries: %w", s.config.MaxRetries, lastErr)
}

// fetch returns the page body, falling back to a headless browser when
// enabled and plain HTTP fails for a reason other than 404
func (s *Scraper) fetch(ctx context.Context, pageURL, referer string) (string, error) {
	body, err := s.doRequestWithRetry(ctx, pageURL, referer)
	if err == nil {
		return body, nil
	}
	if !s.config.HeadlessFallback || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return "", err
	}
	log.Printf("[Scraper] Falling back to headless browser for %s: %v", pageURL, err)
	return s.fetchBrowser(ctx, pageURL)
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL, referer string) (*goquery.Document, string, error) {
	body, err := s.fetch(ctx, pageURL, referer)
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, body, nil
}

// fetchHTMLWithHeadlessBrowser renders pageURL in headless Chrome
func (s *Scraper) fetchHTMLWithHeadlessBrowser(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.config.UserAgent),
	)
	if s.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		log.Printf("[HeadlessBrowser] ERROR fetching %s: %v", pageURL, err)
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	log.Printf("[HeadlessBrowser] Successfully fetched %s (%d bytes)", pageURL, len(htmlContent))
	return htmlContent, nil
}

// Prefectures lists the prefecture pages linked from the top page
func (s *Scraper) Prefectures(ctx context.Context) ([]Prefecture, error) {
	doc, _, err := s.fetchDocument(ctx, s.baseURL.String(), "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prefectures: %w", err)
	}
	return parsePrefectures(doc, s.baseURL), nil
}

// StationLinks collects station page URLs for pref across all list pages
func (s *Scraper) StationLinks(ctx context.Context, pref Prefecture) ([]string, error) {
	var links []string
	seen := make(map[string]bool)
	page := pref.URI
	referer := s.baseURL.String()

	for i := 0; page != "" && i < maxPages; i++ {
		if seen[page] {
			break
		}
		seen[page] = true

		doc, _, err := s.fetchDocument(ctx, page, referer)
		if err != nil {
			return links, fmt.Errorf("failed to fetch station list %s: %w", page, err)
		}
		pageLinks, next := parseStationList(doc, s.baseURL)
		links = append(links, pageLinks...)
		referer = page
		page = next
	}
	return links, nil
}

// ScrapeStation fetches and parses one station detail page
func (s *Scraper) ScrapeStation(ctx context.Context, pref Prefecture, pageURL string) (models.Station, error) {
	doc, body, err := s.fetchDocument(ctx, pageURL, pref.URI)
	if err != nil {
		return models.Station{}, err
	}
	st := parseStation(doc, body)
	st.PrefID = pref.ID
	st.StationID = stationID(pageURL)
	st.URI = pageURL
	return st, nil
}

// Run scrapes every station and hands each to emit. Failures on single
// stations are logged and skipped, and reported at the end as an
// *IncompleteError. Errors from emit abort the run.
func (s *Scraper) Run(ctx context.Context, emit func(models.Station) error) error {
	log.Printf("[Scraper] Fetching prefecture list from %s", s.baseURL)
	prefs, err := s.Prefectures(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Scraper] Found %d prefectures", len(prefs))

	var skipped IncompleteError
	for _, pref := range prefs {
		links, err := s.StationLinks(ctx, pref)
		if err != nil {
			if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
				return err
			}
			log.Printf("[Scraper] Warning: %s(%s): %v", pref.Name, pref.ID, err)
			skipped.Prefectures++
		}

		count := 0
		for _, link := range links {
			st, err := s.ScrapeStation(ctx, pref, link)
			if err != nil {
				if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
					return err
				}
				log.Printf("[Scraper] Error processing station %s: %v", link, err)
				skipped.Stations++
				continue
			}
			metrics.ScrapedStationsTotal.Inc()
			if err := emit(st); err != nil {
				return err
			}
			count++
		}
		log.Printf("[Scraper] Processed %s(%s): %d stations", pref.Name, pref.ID, count)
	}
	if skipped.Prefectures > 0 || skipped.Stations > 0 {
		return &skipped
	}
	return nil
}
