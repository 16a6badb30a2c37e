package fetcher

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Entry is one item of the announcement feed, fields copied verbatim.
type Entry struct {
	Title     string
	Summary   string
	Link      string
	Published string
}

// FeedFetcher retrieves and parses the announcement feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context) ([]Entry, error)
}

// PriceFetcher retrieves the current reference price.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// FetchError reports a transport, status or payload failure from a remote source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchErr(source string, err error) error {
	return &FetchError{Source: source, Err: err}
}
