// Package crawl implements breadth-first web crawling bounded by page
// count, link depth, and a domain allowlist.
package crawl

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/rag"
)

// Config controls traversal behavior.
type Config struct {
	MaxRetries      int
	PolitenessDelay time.Duration
	// RetryBackoffBase scales the exponential backoff between fetch
	// attempts. Zero selects one second.
	RetryBackoffBase time.Duration
}

// Crawler walks pages breadth-first from the seed URLs. Fetch failures
// are retried with exponential backoff and a page that still fails is
// dropped without failing the crawl.
type Crawler struct {
	cfg      Config
	fetcher  rag.Fetcher
	headless rag.Fetcher
	detector rag.HeadlessDetector
	archive  rag.Archive
	clock    rag.Clock
	logger   *zap.Logger
}

// Option configures optional crawler collaborators.
type Option func(*Crawler)

// WithHeadless enables headless promotion: pages the detector flags are
// refetched through the headless fetcher.
func WithHeadless(fetcher rag.Fetcher, detector rag.HeadlessDetector) Option {
	return func(c *Crawler) {
		c.headless = fetcher
		c.detector = detector
	}
}

// WithArchive stores each fetched page's raw HTML in the archive.
func WithArchive(archive rag.Archive) Option {
	return func(c *Crawler) {
		c.archive = archive
	}
}

// New creates a Crawler.
func New(cfg Config, fetcher rag.Fetcher, clock rag.Clock, logger *zap.Logger, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		clock:   clock,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl fetches up to MaxPages documents starting from the seeds,
// following links on the allowlisted domains down to MaxDepth. It
// returns the documents collected so far together with the context error
// when canceled mid-crawl.
func (c *Crawler) Crawl(ctx context.Context, req rag.CrawlRequest) ([]rag.Document, error) {
	log := c.logger.With(zap.String("job_id", req.JobID))
	log.Info("starting crawl",
		zap.Strings("seed_urls", req.SeedURLs),
		zap.Strings("allowlist", req.DomainAllowlist),
		zap.Int("max_pages", req.MaxPages),
		zap.Int("max_depth", req.MaxDepth))

	limiter := rate.NewLimiter(rate.Every(c.cfg.PolitenessDelay), 1)
	visited := make(map[string]bool)
	queued := make(map[string]bool)
	frontier := make([]frontierItem, 0, len(req.SeedURLs))
	for _, seed := range req.SeedURLs {
		frontier = append(frontier, frontierItem{url: seed})
		queued[seed] = true
	}

	var docs []rag.Document
	for len(frontier) > 0 && len(docs) < req.MaxPages {
		if err := ctx.Err(); err != nil {
			log.Warn("crawl canceled", zap.Int("pages_fetched", len(docs)))
			return docs, err
		}

		item := frontier[0]
		frontier = frontier[1:]

		if visited[item.url] {
			continue
		}
		if item.depth > req.MaxDepth {
			continue
		}
		visited[item.url] = true

		log.Debug("crawling page",
			zap.String("url", item.url), zap.Int("depth", item.depth),
			zap.Int("pages_fetched", len(docs)))

		resp, err := c.fetchWithRetries(ctx, rag.FetchRequest{
			JobID: req.JobID,
			URL:   item.url,
			Depth: item.depth,
		})
		if err != nil {
			metrics.ObserveFetch(item.url, "error")
			log.Warn("dropping page after retries",
				zap.String("url", item.url), zap.Error(err))
			continue
		}
		metrics.ObserveFetch(item.url, "success")

		resp = c.maybePromote(ctx, req.JobID, item, resp, log)
		c.archivePage(ctx, item.url, resp.Body, log)

		docs = append(docs, rag.Document{
			URL:         item.url,
			HTMLContent: string(resp.Body),
			FetchedAt:   c.clock.Now(),
			Metadata:    map[string]any{},
		})

		if item.depth < req.MaxDepth {
			for _, link := range extractLinks(resp.Body, item.url, req.DomainAllowlist) {
				if !visited[link] && !queued[link] {
					frontier = append(frontier, frontierItem{url: link, depth: item.depth + 1})
					queued[link] = true
				}
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return docs, err
		}
	}

	log.Info("crawl finished", zap.Int("pages_fetched", len(docs)))
	return docs, nil
}

// fetchWithRetries attempts a fetch up to MaxRetries+1 times, backing
// off 2^attempt seconds between attempts. Responses with status >= 400
// count as failures.
func (c *Crawler) fetchWithRetries(ctx context.Context, req rag.FetchRequest) (rag.FetchResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.fetcher.Fetch(ctx, req)
		if err == nil && resp.StatusCode < 400 && len(resp.Body) > 0 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		}
		c.logger.Warn("fetch attempt failed",
			zap.String("url", req.URL), zap.Int("attempt", attempt+1), zap.Error(lastErr))

		if attempt < c.cfg.MaxRetries {
			base := c.cfg.RetryBackoffBase
			if base == 0 {
				base = time.Second
			}
			if err := sleepWithContext(ctx, time.Duration(1<<attempt)*base); err != nil {
				return rag.FetchResponse{}, err
			}
		}
	}
	return rag.FetchResponse{}, fmt.Errorf("fetch %s failed after %d attempts: %w",
		req.URL, c.cfg.MaxRetries+1, lastErr)
}

// maybePromote refetches through the headless browser when the detector
// flags the response. A failed promotion keeps the original response.
func (c *Crawler) maybePromote(ctx context.Context, jobID string, item frontierItem, resp rag.FetchResponse, log *zap.Logger) rag.FetchResponse {
	if c.detector == nil || c.headless == nil || !c.detector.ShouldPromote(resp) {
		return resp
	}
	log.Info("promoting page to headless render", zap.String("url", item.url))
	rendered, err := c.headless.Fetch(ctx, rag.FetchRequest{
		JobID: jobID,
		URL:   item.url,
		Depth: item.depth,
	})
	if err != nil {
		log.Warn("headless render failed, keeping plain response",
			zap.String("url", item.url), zap.Error(err))
		return resp
	}
	return rendered
}

func (c *Crawler) archivePage(ctx context.Context, pageURL string, body []byte, log *zap.Logger) {
	if c.archive == nil {
		return
	}
	name := objectName(pageURL, c.clock.Now())
	if _, err := c.archive.PutObject(ctx, name, "text/html", body); err != nil {
		log.Warn("failed to archive page", zap.String("url", pageURL), zap.Error(err))
	}
}

func objectName(pageURL string, fetchedAt time.Time) string {
	urlHash := fmt.Sprintf("%x", sha256.Sum256([]byte(pageURL)))
	return path.Join(fetchedAt.Format("2006-01-02"), urlHash+".html")
}

// extractLinks pulls anchor targets out of the page, resolves them
// against the base URL, and keeps only clean http(s) links on the
// allowlisted domains. Query strings and fragments are stripped so the
// same page is not queued under multiple aliases.
func extractLinks(body []byte, baseURL string, allowlist []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !hostAllowed(resolved.Host, allowlist) {
			return
		}
		resolved.RawQuery = ""
		resolved.Fragment = ""
		clean := resolved.String()
		if clean == baseURL || seen[clean] {
			return
		}
		seen[clean] = true
		links = append(links, clean)
	})
	return links
}

func hostAllowed(host string, allowlist []string) bool {
	for _, domain := range allowlist {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
