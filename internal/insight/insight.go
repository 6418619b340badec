// Package insight defines the AI text-generation collaborator. The engine
// must function fully when generation is unavailable; callers treat every
// error or empty result as "no insight".
package insight

import "context"

// Request carries the pricing context an insight is generated from.
type Request struct {
	UserID     string
	GameTitle  string
	SteamPrice *float64
	EpicPrice  *float64
	OldPrice   *float64
	NewPrice   *float64
	Kind       string // quick_tip or price_change
}

// Generator produces a short natural-language insight. An empty string with a
// nil error means the generator had nothing to say.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, req Request) (string, error)
}

// Disabled is the generator used when no credential is configured.
type Disabled struct{}

// Enabled reports false.
func (Disabled) Enabled() bool { return false }

// Generate returns no insight.
func (Disabled) Generate(_ context.Context, _ Request) (string, error) {
	return "", nil
}
