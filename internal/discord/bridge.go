// Package discord exchanges a Discord OAuth authorization code for a bearer
// token issued by this service.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/config"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/models"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/metrics"
)

// ErrUnauthorized is the only error callers of ExchangeCode see.
var ErrUnauthorized = errors.New("discord: unauthorized")

var (
	errEmptyCode     = errors.New("empty authorization code")
	errNoExpiry      = errors.New("token response has no positive expires_in")
	errProfileStatus = errors.New("profile request rejected")
	errNoProfileID   = errors.New("profile has no id")
)

const maxProfileBytes = 1 << 20

type Logger interface {
	Warnf(format string, v ...interface{})
}

// Minter signs the token handed back to the client.
type Minter interface {
	Mint(subject string, expiresAt time.Time) (string, error)
}

// Bridge turns an authorization code into a signed bearer token for the
// Discord user it belongs to.
type Bridge struct {
	oauth      oauth2.Config
	profileURL string
	minter     Minter
	client     *http.Client
	now        func() time.Time
	log        Logger
}

type Option func(*Bridge)

// WithHTTPClient sets the client used for both provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) { b.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

func WithLogger(l Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func NewBridge(cfg config.DiscordConfig, minter Minter, opts ...Option) *Bridge {
	b := &Bridge{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: strings.TrimRight(cfg.APIBaseURL, "/") + "/users/@me",
		minter:     minter,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ExchangeCode redeems code at the token endpoint, looks up the user it was
// issued for and mints a token for that user expiring together with the
// provider's access token. Every failure yields ErrUnauthorized; the cause is
// only logged.
func (b *Bridge) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := b.exchange(ctx, code)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("rejected").Inc()
		if b.log != nil {
			b.log.Warnf("code exchange failed: %v", err)
		}
		return "", ErrUnauthorized
	}
	metrics.TokenExchanges.WithLabelValues("issued").Inc()
	return tok, nil
}

func (b *Bridge) exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errEmptyCode
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)

	// Exchange is a single POST; oauth2 never retries it.
	ext, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token endpoint: %w", err)
	}
	lifetime, ok := expiresIn(ext)
	if !ok {
		return "", errNoExpiry
	}

	user, err := b.profile(ctx, ext)
	if err != nil {
		return "", err
	}

	signed, err := b.minter.Mint(user.ID, b.now().Add(lifetime))
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	return signed, nil
}

func (b *Bridge) profile(ctx context.Context, ext *oauth2.Token) (*models.DiscordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.profileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(ext)).Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", errProfileStatus, resp.Status)
	}

	var user models.DiscordUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&user); err != nil {
		return nil, fmt.Errorf("profile body: %w", err)
	}
	if user.ID == "" {
		return nil, errNoProfileID
	}
	return &user, nil
}

// expiresIn reads the wire expires_in of the token response.
func expiresIn(t *oauth2.Token) (time.Duration, bool) {
	secs := t.ExpiresIn
	if secs <= 0 {
		switch v := t.Extra("expires_in").(type) {
		case float64:
			secs = int64(v)
		case json.Number:
			secs, _ = v.Int64()
		case string:
			secs, _ = json.Number(v).Int64()
		}
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
