package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// Location sources reported by LocationService.Resolve.
const (
	LocationDevice    = "device"
	LocationLastKnown = "last_known"
	LocationDefault   = "default"
)

// Locator resolves the device position.
type Locator interface {
	Locate(ctx context.Context) (domain.Coordinates, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (domain.Coordinates, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (domain.Coordinates, error) { return f(ctx) }

// ResolvedLocation is a position together with where it came from.
type ResolvedLocation struct {
	domain.Coordinates
	Source string `json:"source"`
}

// LocationService resolves the current position with a bounded wait: the
// device locator is raced against Timeout, falling back to the last known
// position and then to Default.
type LocationService struct {
	DB      *gorm.DB
	Repo    KVRepo
	Locator Locator

	Timeout time.Duration
	Default domain.Coordinates
}

// Resolve never fails; the worst case is the configured default.
func (s *LocationService) Resolve(ctx context.Context) ResolvedLocation {
	if s.Locator != nil {
		c, ok := WithTimeout(ctx, s.Timeout, s.Locator.Locate, func() domain.Coordinates { return domain.Coordinates{} })
		if ok {
			if err := s.remember(ctx, c); err != nil {
				log.Warn().Err(err).Msg("persist last location")
			}
			return ResolvedLocation{Coordinates: c, Source: LocationDevice}
		}
	}
	if c, ok := s.lastKnown(ctx); ok {
		return ResolvedLocation{Coordinates: c, Source: LocationLastKnown}
	}
	return ResolvedLocation{Coordinates: s.Default, Source: LocationDefault}
}

// Report records a device fix as the last known position and hands it to a
// waiting PushLocator, if any.
func (s *LocationService) Report(ctx context.Context, c domain.Coordinates) error {
	if pl, ok := s.Locator.(*PushLocator); ok {
		pl.Report(c)
	}
	return s.remember(ctx, c)
}

func (s *LocationService) remember(ctx context.Context, c domain.Coordinates) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.Repo.PutValue(ctx, s.DB, domain.KeyLastLocation, string(b))
}

func (s *LocationService) lastKnown(ctx context.Context) (domain.Coordinates, bool) {
	v, err := s.Repo.GetValue(ctx, s.DB, domain.KeyLastLocation)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Err(err).Msg("read last location")
		}
		return domain.Coordinates{}, false
	}
	var c domain.Coordinates
	if err := json.Unmarshal([]byte(v), &c); err != nil {
		return domain.Coordinates{}, false
	}
	return c, true
}

// PushLocator is a Locator fed by fixes reported from outside the process
// (the UI shell). Locate waits for the next reported fix.
type PushLocator struct {
	mu      sync.Mutex
	waiters map[chan domain.Coordinates]struct{}
}

// NewPushLocator returns a PushLocator with no waiters.
func NewPushLocator() *PushLocator {
	return &PushLocator{waiters: map[chan domain.Coordinates]struct{}{}}
}

// Report delivers c to every pending Locate call.
func (p *PushLocator) Report(c domain.Coordinates) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.waiters {
		ch <- c
		delete(p.waiters, ch)
	}
}

// Locate blocks until the next Report or until ctx is done.
func (p *PushLocator) Locate(ctx context.Context) (domain.Coordinates, error) {
	ch := make(chan domain.Coordinates, 1)
	p.mu.Lock()
	p.waiters[ch] = struct{}{}
	p.mu.Unlock()

	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, ch)
		p.mu.Unlock()
		return domain.Coordinates{}, ctx.Err()
	}
}
