// Package browser drives the archive.today submission form in a headless browser,
// clearing human-verification challenges along the way.
package browser

import (
	"context"
)

// Launcher starts a browser process.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser that hands out isolated pages.
type Browser interface {
	// NewPage opens a tab in a fresh browser context that shares no cookies or storage
	// with other pages.
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single isolated tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Eval(ctx context.Context, script string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
