// Package extract turns fetched profile pages into extracted facts.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"

	"github.com/ppiankov/cvlacsync/internal/model"
	"github.com/ppiankov/cvlacsync/internal/pipeline"
)

// ErrNoProfile is returned when a page carries neither a profile nor projects
var ErrNoProfile = errors.New("page is not a researcher profile")

// Fetcher retrieves pages. *pipeline.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.Page, error)
}

// forgetter is implemented by fetchers that cache pages
type forgetter interface {
	Forget(url string)
}

// forget evicts link from a caching fetcher so a page that failed to
// extract is fetched fresh on the next pass
func forget(f Fetcher, link string) {
	if c, ok := f.(forgetter); ok {
		c.Forget(link)
	}
}

// New builds the extractor named by cfg.Kind
func New(cfg model.ExtractorConfig, f Fetcher) (pipeline.Extractor, error) {
	switch cfg.Kind {
	case "", "cvlac":
		return NewCvlacExtractor(f), nil
	case "llm":
		e, err := NewLLMExtractor(cfg.LLM, f)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q (want cvlac or llm)", cfg.Kind)
	}
}

// decodeBody converts a page body to UTF-8 using the declared or sniffed charset
func decodeBody(page *model.Page) (io.Reader, error) {
	r, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return r, nil
}
