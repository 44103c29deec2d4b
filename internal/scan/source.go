package scan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/caching"
	"github.com/dtnitsch/factcheck-relay/pkg/fetcher"
	"github.com/dtnitsch/factcheck-relay/pkg/parser"
	scanpkg "github.com/dtnitsch/factcheck-relay/pkg/scan"
)

// pageSource fetches a page and extracts the text a scan submits. A nil
// cache always fetches.
type pageSource struct {
	fetcher *fetcher.Fetcher
	parser  *parser.Parser
	cache   *caching.TextCache
	article bool
	logger  *slog.Logger
}

func (s *pageSource) mode() string {
	if s.article {
		return "article"
	}
	return "visible"
}

func (s *pageSource) PageText(ctx context.Context, pageURL string) (string, error) {
	if s.cache != nil {
		if e, ok := s.cache.Get(pageURL, s.mode()); ok {
			s.logger.Debug("Page text from cache", "url", pageURL, "fetched_at", e.FetchedAt)
			return e.Text, nil
		}
	}

	page, err := s.fetcher.GetHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}
	extract := s.parser.VisibleText
	if s.article {
		extract = s.parser.ArticleText
	}
	parsed, err := extract(page.URL, string(page.HTML))
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.Put(pageURL, s.mode(), parsed.Title, parsed.Text); err != nil {
			s.logger.Warn("Failed to cache page text", "url", pageURL, "error", err)
		}
	}
	return parsed.Text, nil
}

// recordingSource remembers the extraction error of one tab's page so a
// page that could not be read is not reported as skipped.
type recordingSource struct {
	next scanpkg.TextSource

	mu  sync.Mutex
	err error
}

func (r *recordingSource) PageText(ctx context.Context, pageURL string) (string, error) {
	text, err := r.next.PageText(ctx, pageURL)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	return text, err
}

func (r *recordingSource) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// recordingSubmitter passes requests through and keeps the last outcome
// for the report.
type recordingSubmitter struct {
	next scanpkg.Submitter

	mu        sync.Mutex
	submitted bool
	result    *models.VerificationResult
	err       error
}

func (r *recordingSubmitter) Submit(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error) {
	res, err := r.next.Submit(ctx, req)
	r.mu.Lock()
	r.submitted = true
	r.result, r.err = res, err
	r.mu.Unlock()
	return res, err
}

func (r *recordingSubmitter) outcome() (bool, *models.VerificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted, r.result, r.err
}
