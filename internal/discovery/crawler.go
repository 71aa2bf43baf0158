// Package discovery enumerates candidate papers, either by crawling the
// conference archive or by listing a local year/PDF directory tree.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

const (
	stageKey   = "stage"
	yearKey    = "year"
	stageIndex = "index"
	stageYear  = "year"
	stagePaper = "paper"

	yearLinkSelector  = "a[href*='/paper_files/']"
	paperLinkSelector = "a[href*='/paper/']"
	pdfAnchorText     = "Paper"
)

var (
	yearPattern   = regexp.MustCompile(`(?:19|20)\d{2}`)
	yearIndexPath = regexp.MustCompile(`/paper_files/(?:paper/)?\d{4}/?$`)
)

// CrawlerConfig controls the archive crawl.
type CrawlerConfig struct {
	BaseURL     string
	Years       []string
	UserAgent   string
	Parallelism int
	Timeout     time.Duration
}

// Crawler walks index -> year pages -> paper pages -> PDF links.
type Crawler struct {
	cfg    CrawlerConfig
	logger *zap.Logger
}

// NewCrawler builds a Crawler.
func NewCrawler(cfg CrawlerConfig, logger *zap.Logger) *Crawler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, logger: logger}
}

type crawlState struct {
	mu       sync.Mutex
	items    map[string]paper.WorkItem
	pageErrs int
}

func (s *crawlState) add(item paper.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		s.items[item.ID] = item
	}
}

// Discover crawls the archive and returns WorkItems sorted by group then ID.
func (c *Crawler) Discover(ctx context.Context) ([]paper.WorkItem, error) {
	if _, err := url.ParseRequestURI(c.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", c.cfg.BaseURL, err)
	}
	state := &crawlState{items: make(map[string]paper.WorkItem)}
	years := yearFilter(c.cfg.Years)

	collector := colly.NewCollector(colly.Async(true))
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: c.cfg.Parallelism}); err != nil {
		return nil, fmt.Errorf("configure crawl limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		state.mu.Lock()
		state.pageErrs++
		state.mu.Unlock()
		c.logger.Warn("archive page failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err),
		)
	})

	collector.OnHTML(yearLinkSelector, func(e *colly.HTMLElement) {
		if e.Request.Ctx.Get(stageKey) != stageIndex {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		year := yearOf(link)
		if link == "" || year == "" {
			return
		}
		if len(years) > 0 {
			if _, ok := years[year]; !ok {
				return
			}
		}
		c.visit(collector, link, stageYear, year)
	})

	collector.OnHTML(paperLinkSelector, func(e *colly.HTMLElement) {
		if e.Request.Ctx.Get(stageKey) != stageYear {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || isYearIndex(link) {
			return
		}
		c.visit(collector, link, stagePaper, e.Request.Ctx.Get(yearKey))
	})

	collector.OnHTML("body", func(e *colly.HTMLElement) {
		if e.Request.Ctx.Get(stageKey) != stagePaper {
			return
		}
		anchor := e.DOM.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.TrimSpace(s.Text()) == pdfAnchorText
		}).First()
		href, ok := anchor.Attr("href")
		if !ok {
			c.logger.Debug("paper page has no PDF link", zap.String("url", e.Request.URL.String()))
			return
		}
		pdfURL := e.Request.AbsoluteURL(href)
		id := documentID(pdfURL)
		if id == "" {
			return
		}
		state.add(paper.WorkItem{Source: pdfURL, Group: e.Request.Ctx.Get(yearKey), ID: id})
	})

	if err := c.request(collector, c.cfg.BaseURL, stageIndex, ""); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", c.cfg.BaseURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discovery canceled: %w", err)
	}

	items := make([]paper.WorkItem, 0, len(state.items))
	for _, item := range state.items {
		items = append(items, item)
	}
	SortItems(items)
	c.logger.Info("archive crawl finished",
		zap.String("base_url", c.cfg.BaseURL),
		zap.Int("papers", len(items)),
		zap.Int("page_errors", state.pageErrs),
	)
	if len(items) == 0 && state.pageErrs > 0 {
		return nil, errors.New("archive crawl found no papers and encountered page errors")
	}
	return items, nil
}

func (c *Crawler) visit(collector *colly.Collector, link, stage, year string) {
	if err := c.request(collector, link, stage, year); err != nil {
		// Revisits of links seen on other pages land here too.
		c.logger.Debug("skipping link", zap.String("url", link), zap.Error(err))
	}
}

// request gives every page its own colly context so stages don't leak between pages.
func (c *Crawler) request(collector *colly.Collector, link, stage, year string) error {
	pageCtx := colly.NewContext()
	pageCtx.Put(stageKey, stage)
	pageCtx.Put(yearKey, year)
	if err := collector.Request("GET", link, nil, pageCtx, nil); err != nil {
		return fmt.Errorf("request %s: %w", link, err)
	}
	return nil
}

func yearFilter(years []string) map[string]struct{} {
	out := make(map[string]struct{}, len(years))
	for _, y := range years {
		if y = strings.TrimSpace(y); y != "" {
			out[y] = struct{}{}
		}
	}
	return out
}

// yearOf returns the first four-digit year in the URL path.
func yearOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return yearPattern.FindString(u.Path)
}

func isYearIndex(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return yearIndexPath.MatchString(u.Path)
}

// documentID is the last path segment of the PDF URL.
func documentID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	id := path.Base(u.Path)
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// SortItems orders items by group then ID so runs are reproducible.
func SortItems(items []paper.WorkItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Group != items[j].Group {
			return items[i].Group < items[j].Group
		}
		return items[i].ID < items[j].ID
	})
}
