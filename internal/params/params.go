// Package params holds the dynamic service parameters that operators
// tune at runtime without a redeploy: the entitlement duration, the
// price, and the payment provider credentials. Values live in redis with
// an append-only change history per parameter; when redis is down reads
// fall back to the configured defaults so the service keeps answering.
package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/markoval/stylist-api/internal/platform/redis"
)

// Known parameter names.
const (
	// NameDuration is the entitlement validity window in minutes,
	// historically called W.
	NameDuration = "W"

	// NamePrice is the payment amount in whole currency units.
	NamePrice = "Price"

	// NameShopID and NameAPIKey are the payment provider credentials.
	NameShopID = "ShopID"
	NameAPIKey = "APIKey"
)

// knownNames is the closed set of accepted parameter names.
var knownNames = map[string]bool{
	NameDuration: true,
	NamePrice:    true,
	NameShopID:   true,
	NameAPIKey:   true,
}

const (
	paramKeyPrefix   = "param:"
	historyKeyPrefix = "param_history:"

	// historyCap bounds each parameter's change history.
	historyCap = 100
)

// Errors returned by the store.
var (
	// ErrUnknownParam is returned for names outside the known set.
	ErrUnknownParam = errors.New("unknown parameter")

	// ErrInvalidValue is returned when a value would break consumers of
	// the parameter, e.g. a non-numeric price.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// HistoryEntry is one recorded parameter change.
type HistoryEntry struct {
	Value     string    `json:"value"`
	ChangedAt time.Time `json:"changed_at"`
}

// Defaults are the config-sourced values used to seed redis on first
// start and to answer reads while redis is unreachable.
type Defaults struct {
	DurationMinutes int
	Price           int
	ShopID          string
	APIKey          string
}

func (d Defaults) value(name string) string {
	switch name {
	case NameDuration:
		return strconv.Itoa(d.DurationMinutes)
	case NamePrice:
		return strconv.Itoa(d.Price)
	case NameShopID:
		return d.ShopID
	case NameAPIKey:
		return d.APIKey
	default:
		return ""
	}
}

// Store reads and writes dynamic parameters.
type Store struct {
	client   *redis.Client
	defaults Defaults
	logger   *slog.Logger
}

// NewStore creates a parameter store.
func NewStore(client *redis.Client, defaults Defaults, logger *slog.Logger) *Store {
	return &Store{
		client:   client,
		defaults: defaults,
		logger:   logger.With("component", "params"),
	}
}

// Initialize seeds any missing parameters from the defaults. Existing
// values are never overwritten, so operator changes survive restarts.
func (s *Store) Initialize(ctx context.Context) error {
	for name := range knownNames {
		created, err := s.client.SetNX(ctx, paramKeyPrefix+name, []byte(s.defaults.value(name)), 0)
		if err != nil {
			return fmt.Errorf("failed to seed parameter %s: %w", name, err)
		}
		if created {
			if err := s.appendHistory(ctx, name, s.defaults.value(name)); err != nil {
				s.logger.Warn("failed to record seed history", "param", name, "error", err)
			}
			s.logger.Info("parameter seeded from defaults", "param", name)
		}
	}
	return nil
}

// Get returns the current value of a parameter, falling back to the
// configured default when redis is unreachable.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	if !knownNames[name] {
		return "", fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}

	value, err := s.client.Get(ctx, paramKeyPrefix+name)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return s.defaults.value(name), nil
		}
		s.logger.Warn("parameter store unreachable, using default",
			"param", name,
			"error", err)
		return s.defaults.value(name), nil
	}
	return string(value), nil
}

// Set updates a parameter and appends the change to its history. The
// history is capped; old entries fall off the tail.
func (s *Store) Set(ctx context.Context, name, value string) error {
	if !knownNames[name] {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	if err := validateValue(name, value); err != nil {
		return err
	}

	if err := s.client.Set(ctx, paramKeyPrefix+name, []byte(value), 0); err != nil {
		return fmt.Errorf("failed to set parameter %s: %w", name, err)
	}
	if err := s.appendHistory(ctx, name, value); err != nil {
		s.logger.Warn("failed to record parameter history", "param", name, "error", err)
	}

	s.logger.Info("parameter updated", "param", name)
	return nil
}

// History returns the change history for a parameter, newest first.
func (s *Store) History(ctx context.Context, name string) ([]HistoryEntry, error) {
	if !knownNames[name] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}

	raw, err := s.client.LRange(ctx, historyKeyPrefix+name, 0, historyCap-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", name, err)
	}

	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("skipping corrupt history entry", "param", name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DurationMinutes returns the current entitlement duration.
func (s *Store) DurationMinutes(ctx context.Context) int {
	return s.intValue(ctx, NameDuration, s.defaults.DurationMinutes)
}

// Price returns the current payment amount.
func (s *Store) Price(ctx context.Context) int {
	return s.intValue(ctx, NamePrice, s.defaults.Price)
}

// ShopID returns the payment provider shop id.
func (s *Store) ShopID(ctx context.Context) string {
	value, _ := s.Get(ctx, NameShopID)
	return value
}

// APIKey returns the payment provider secret key.
func (s *Store) APIKey(ctx context.Context) string {
	value, _ := s.Get(ctx, NameAPIKey)
	return value
}

func (s *Store) intValue(ctx context.Context, name string, fallback int) int {
	value, err := s.Get(ctx, name)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		s.logger.Warn("parameter is not a positive integer, using default",
			"param", name,
			"value", value)
		return fallback
	}
	return n
}

func (s *Store) appendHistory(ctx context.Context, name, value string) error {
	entry, err := json.Marshal(HistoryEntry{Value: value, ChangedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	key := historyKeyPrefix + name
	if err := s.client.LPush(ctx, key, string(entry)); err != nil {
		return err
	}
	return s.client.LTrim(ctx, key, 0, historyCap-1)
}

// validateValue rejects values that would break consumers of the
// numeric parameters.
func validateValue(name, value string) error {
	switch name {
	case NameDuration, NamePrice:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: parameter %s requires a positive integer, got %q", ErrInvalidValue, name, value)
		}
	}
	return nil
}
