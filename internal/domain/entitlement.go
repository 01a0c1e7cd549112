package domain

import (
	"net/mail"
	"time"
)

// Style identifies one of the fixed set of publication styles a client
// may request once each per entitlement.
type Style string

// The nine publication styles, in their fixed storage order (st1..st9).
// The set never grows or shrinks for an existing entitlement.
const (
	StylePersuasive     Style = "persuasive"
	StyleIronic         Style = "ironic"
	StyleConversational Style = "conversational"
	StyleProvocative    Style = "provocative"
	StyleInformational  Style = "informational"
	StyleFormal         Style = "formal"
	StyleStorytelling   Style = "storytelling"
	StyleSelling        Style = "selling"
	StyleMedical        Style = "medical"
)

// NumStyles is the size of the style set.
const NumStyles = 9

// StyleOrder lists all styles in storage order. Index i corresponds to
// the st(i+1) column of the entitlements table.
var StyleOrder = [NumStyles]Style{
	StylePersuasive,
	StyleIronic,
	StyleConversational,
	StyleProvocative,
	StyleInformational,
	StyleFormal,
	StyleStorytelling,
	StyleSelling,
	StyleMedical,
}

// StyleIndex returns the storage index of the given style, or -1 if the
// name is not part of the fixed set.
func StyleIndex(style Style) int {
	for i, s := range StyleOrder {
		if s == style {
			return i
		}
	}
	return -1
}

// ParsedArtifact is the memoized output of the expensive parse step
// (page fetch + cleanup + intermediate LLM summarization), persisted on
// the entitlement so later style requests against the same URL can skip
// refetching.
type ParsedArtifact struct {
	Text  string `json:"text"`
	Steps string `json:"steps"`
}

// IsZero reports whether no artifact has been saved yet.
func (a ParsedArtifact) IsZero() bool {
	return a.Text == "" && a.Steps == ""
}

// Entitlement is the time- and quota-bounded right granted to one client
// identity after a successful payment. There is at most one entitlement
// per email at any time; a new payment retires the old record.
type Entitlement struct {
	Email           string          `json:"email"`
	TargetURL       string          `json:"target_url"`
	OccasionNote    string          `json:"occasion_note"`
	Styles          [NumStyles]bool `json:"styles"`
	PaidAt          time.Time       `json:"paid_at"`
	DurationMinutes int             `json:"duration_minutes"`
	PaymentID       string          `json:"payment_id"`
	Amount          int             `json:"amount"`
	Artifact        ParsedArtifact  `json:"artifact"`
	Active          bool            `json:"active"`
}

// NewEntitlement creates a fresh entitlement anchored at now, with all
// style flags available and empty context.
// Returns an error if validation fails.
func NewEntitlement(email, paymentID string, amount, durationMinutes int) (*Entitlement, error) {
	e := &Entitlement{
		Email:           email,
		PaidAt:          time.Now().UTC(),
		DurationMinutes: durationMinutes,
		PaymentID:       paymentID,
		Amount:          amount,
		Active:          true,
	}
	for i := range e.Styles {
		e.Styles[i] = true
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks that the entitlement has a usable identity and window.
func (e *Entitlement) Validate() error {
	if e.Email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(e.Email); err != nil {
		return ErrInvalidEmail
	}
	if e.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if e.PaidAt.IsZero() {
		return ErrValidation
	}
	return nil
}

// ExpiresAt returns the end of the validity window.
func (e *Entitlement) ExpiresAt() time.Time {
	return e.PaidAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// ValidAt reports whether the entitlement window is still open at the
// given instant. The check at exactly PaidAt+Duration is already invalid.
func (e *Entitlement) ValidAt(now time.Time) bool {
	return now.Sub(e.PaidAt) < time.Duration(e.DurationMinutes)*time.Minute
}

// AvailableStyles returns a snapshot of all style flags.
func (e *Entitlement) AvailableStyles() map[Style]bool {
	m := make(map[Style]bool, NumStyles)
	for i, s := range StyleOrder {
		m[s] = e.Styles[i]
	}
	return m
}

// HasUnused reports whether at least one style flag is still available.
func (e *Entitlement) HasUnused() bool {
	for _, available := range e.Styles {
		if available {
			return true
		}
	}
	return false
}

// StyleAvailable reports whether the named style is still available.
// Unknown style names report false.
func (e *Entitlement) StyleAvailable(style Style) bool {
	i := StyleIndex(style)
	if i < 0 {
		return false
	}
	return e.Styles[i]
}

// ConsumeStyle flips the named flag from available to consumed. The
// transition is monotonic: a consumed flag is never made available again.
// Returns ErrUnknownStyle for names outside the fixed set and
// ErrStyleConsumed if the flag was already spent.
func (e *Entitlement) ConsumeStyle(style Style) error {
	i := StyleIndex(style)
	if i < 0 {
		return ErrUnknownStyle
	}
	if !e.Styles[i] {
		return ErrStyleConsumed
	}
	e.Styles[i] = false
	return nil
}
