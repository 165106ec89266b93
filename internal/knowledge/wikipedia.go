// Package knowledge looks up short encyclopedia extracts that can be shown
// next to locally retrieved chunks.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Defaults for the Wikipedia source.
const (
	DefaultEndpoint   = "https://en.wikipedia.org/w/api.php"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxExtract = 500
	DefaultCacheSize  = 500
	DefaultCacheTTL   = 24 * time.Hour
	DefaultRate       = 1.0

	// Score assigned to an article when it is ranked with local chunks.
	ArticleScore = 0.95

	minExtractLen = 50
	maxTermLen    = 300
	minUserAgent  = 20

	License    = "CC BY-SA 3.0"
	LicenseURL = "https://creativecommons.org/licenses/by-sa/3.0/"
)

// Article is a Wikipedia page extract.
type Article struct {
	Title      string    `json:"title"`
	Extract    string    `json:"extract"`
	URL        string    `json:"url"`
	PageID     int64     `json:"pageid,omitempty"`
	RevID      int64     `json:"revid,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	License    string    `json:"license"`
	LicenseURL string    `json:"license_url"`
}

// Source returns the attribution label, e.g. "Wikipedia: Photosynthesis".
func (a *Article) Source() string { return "Wikipedia: " + a.Title }

// Config configures a Wikipedia client.
type Config struct {
	Endpoint string
	// UserAgent must name the project and include a contact address.
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	MaxExtract    int
	CacheSize     int
	CacheTTL      time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Wikipedia queries the MediaWiki extracts API.
type Wikipedia struct {
	endpoint   string
	userAgent  string
	timeout    time.Duration
	maxExtract int
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*Article]
	cache      *expirable.LRU[string, *Article]
	logger     *slog.Logger
}

// errNotFound marks an answer without a usable page. It does not count
// against the circuit breaker.
var errNotFound = errors.New("no usable article")

// New creates a Wikipedia client.
func New(cfg Config) (*Wikipedia, error) {
	ua := strings.TrimSpace(cfg.UserAgent)
	if len(ua) < minUserAgent || !strings.Contains(ua, "@") {
		return nil, tterrors.ConfigError("wikipedia user agent must include project name and contact email", nil).
			WithSuggestion("Set WIKIMEDIA_USER_AGENT, e.g. 'StudyTutor/1.0 (https://example.org; you@example.org)'")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxExtract <= 0 {
		cfg.MaxExtract = DefaultMaxExtract
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Wikipedia{
		endpoint:   cfg.Endpoint,
		userAgent:  ua,
		timeout:    cfg.Timeout,
		maxExtract: cfg.MaxExtract,
		client:     cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cache:      expirable.NewLRU[string, *Article](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:     cfg.Logger,
	}
	w.breaker = gobreaker.NewCircuitBreaker[*Article](gobreaker.Settings{
		Name:        "wikipedia",
		MaxRequests: 2,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("wikipedia circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return w, nil
}

// Search returns the article whose title matches query. It returns nil,
// nil when no usable page exists.
func (w *Wikipedia) Search(ctx context.Context, query string) (*Article, error) {
	term := SanitizeTerm(query)
	if term == "" {
		return nil, nil
	}
	key := cacheKey(term)
	if a, ok := w.cache.Get(key); ok {
		return a, nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, knowledgeError("rate limiter", err)
	}

	a, err := w.breaker.Execute(func() (*Article, error) {
		return w.fetch(ctx, term)
	})
	switch {
	case errors.Is(err, errNotFound):
		return nil, nil
	case err != nil:
		return nil, knowledgeError("wikipedia lookup failed", err)
	}
	w.cache.Add(key, a)
	w.logger.Debug("wikipedia article fetched", slog.String("title", a.Title))
	return a, nil
}

// BreakerState reports the circuit state.
func (w *Wikipedia) BreakerState() string { return w.breaker.State().String() }

type apiResponse struct {
	Query struct {
		Pages []struct {
			PageID    int64  `json:"pageid"`
			Title     string `json:"title"`
			Extract   string `json:"extract"`
			Missing   bool   `json:"missing"`
			Invalid   bool   `json:"invalid"`
			Revisions []struct {
				RevID int64 `json:"revid"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

func (w *Wikipedia) fetch(ctx context.Context, term string) (*Article, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.buildURL(term), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Query.Pages) == 0 {
		return nil, errNotFound
	}
	page := body.Query.Pages[0]
	if page.Missing || page.Invalid {
		return nil, errNotFound
	}
	extract := CleanWikitext(page.Extract)
	if utf8.RuneCountInString(extract) < minExtractLen {
		return nil, errNotFound
	}

	a := &Article{
		Title:      page.Title,
		Extract:    truncateAtSentence(extract, w.maxExtract),
		URL:        "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(page.Title, " ", "_"),
		PageID:     page.PageID,
		Timestamp:  time.Now().UTC(),
		License:    License,
		LicenseURL: LicenseURL,
	}
	if len(page.Revisions) > 0 {
		a.RevID = page.Revisions[0].RevID
	}
	return a, nil
}

func (w *Wikipedia) buildURL(term string) string {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("titles", term)
	q.Set("prop", "extracts|revisions")
	q.Set("rvprop", "ids")
	q.Set("exintro", "true")
	q.Set("explaintext", "true")
	q.Set("redirects", "true")
	q.Set("maxlag", "5")
	return w.endpoint + "?" + q.Encode()
}

func knowledgeError(msg string, cause error) *tterrors.TutorError {
	return tterrors.New(tterrors.ErrCodeKnowledgeSource, msg, cause).WithDetail("source", "wikipedia")
}

func cacheKey(term string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(term)))
	return hex.EncodeToString(sum[:])
}

var (
	markupRe    = regexp.MustCompile(`\[\[|\]\]|\{\{|\}\}`)
	unsafeRe    = regexp.MustCompile(`[<>"']`)
	templateRe  = regexp.MustCompile(`\{\{[^}]+\}\}`)
	linkRe      = regexp.MustCompile(`\[\[(?:[^|\]]+\|)?([^\]]+)\]\]`)
	commentRe   = regexp.MustCompile(`(?s)<!--.*?-->`)
	whitespaceR = regexp.MustCompile(`\s+`)
)

// SanitizeTerm strips wiki markup and quote or angle characters, collapses
// whitespace and caps the term at 300 bytes on a word boundary.
func SanitizeTerm(query string) string {
	s := markupRe.ReplaceAllString(query, "")
	s = unsafeRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxTermLen {
		s = s[:maxTermLen]
		if i := strings.LastIndexByte(s, ' '); i > 0 {
			s = s[:i]
		}
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}

// CleanWikitext removes templates, link markup and HTML comments.
func CleanWikitext(text string) string {
	if text == "" {
		return ""
	}
	text = templateRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = commentRe.ReplaceAllString(text, "")
	text = whitespaceR.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// truncateAtSentence cuts text to at most n bytes ending on the last full
// stop.
func truncateAtSentence(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := strings.ToValidUTF8(text[:n], "")
	if i := strings.LastIndexByte(cut, '.'); i >= 0 {
		cut = cut[:i]
	}
	return cut + "."
}

var triggerPrefixes = []string{"what is", "who is", "define", "explain", "describe", "tell me about"}

// ShouldQuery reports whether query looks like it asks about a topic an
// encyclopedia covers: a definitional opening, or at least two capitalised
// words longer than one letter.
func ShouldQuery(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, p := range triggerPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	capitalised := 0
	for _, word := range strings.Fields(query) {
		r, size := utf8.DecodeRuneInString(word)
		if size < len(word) && unicode.IsUpper(r) {
			capitalised++
		}
	}
	return capitalised >= 2
}
