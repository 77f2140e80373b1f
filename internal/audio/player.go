// Package audio implements the playback controller for the story audio. It
// owns exactly one media source at a time and keeps scrub/seek state
// consistent with the asynchronous media events reported by the UI layer.
//
// The controller is not safe for concurrent use on its own; the owning quiz
// session serializes access through its lock.
package audio

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Player tracks the playback state of the single active media source.
type Player struct {
	baseURL     string
	rates       []float64
	initialRate float64

	// sourceToken identifies the current source. Media events carry the token
	// they were issued for so that events from a replaced source are ignored.
	sourceToken string
	url         string
	attached    bool
	playing     bool
	duration    float64
	position    float64
	rate        float64

	rateMenuOpen bool
	dragging     bool
}

// Snapshot is an exported view of the player state for the UI layer.
type Snapshot struct {
	SourceToken  string    `json:"sourceToken"`
	URL          string    `json:"url"`
	Playing      bool      `json:"playing"`
	Duration     float64   `json:"duration"`
	Position     float64   `json:"position"`
	Progress     *float64  `json:"progress,omitempty"`
	Rate         float64   `json:"rate"`
	Rates        []float64 `json:"rates"`
	RateMenuOpen bool      `json:"rateMenuOpen"`
	Dragging     bool      `json:"dragging"`
}

// NewPlayer creates a player. Relative source URLs are resolved against
// baseURL. rates is the fixed set of selectable playback multipliers; the
// initial rate is 1 if present, otherwise the first entry.
func NewPlayer(baseURL string, rates []float64) *Player {
	if len(rates) == 0 {
		rates = []float64{1}
	}
	initialRate := rates[0]
	for _, r := range rates {
		if r == 1 {
			initialRate = 1
			break
		}
	}
	return &Player{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		rates:        rates,
		initialRate:  initialRate,
		sourceToken:  "",
		url:          "",
		attached:     false,
		playing:      false,
		duration:     0,
		position:     0,
		rate:         initialRate,
		rateMenuOpen: false,
		dragging:     false,
	}
}

// ResolveURL applies the one resolution rule used everywhere a source URL is
// referenced: an absolute URL is used verbatim, a relative one is resolved
// against the configured base location.
func ResolveURL(baseURL, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if strings.Contains(rawURL, "://") {
		return rawURL
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), strings.TrimPrefix(rawURL, "/"))
}

// Load replaces the current source. Progress, position and playback rate
// reset so that a new story always starts from a clean state.
func (p *Player) Load(rawURL string) {
	p.sourceToken = uuid.NewString()
	p.url = ResolveURL(p.baseURL, rawURL)
	p.attached = false
	p.playing = false
	p.duration = 0
	p.position = 0
	p.rate = p.initialRate
	p.dragging = false
}

// TogglePlayback toggles play/pause and reports whether the player is now
// playing. The source is lazily attached on first play. Without a loaded
// source this is a no-op.
func (p *Player) TogglePlayback() bool {
	if p.url == "" {
		return false
	}
	if !p.attached {
		p.attached = true
	}
	p.playing = !p.playing
	return p.playing
}

// PlayFailure marks a failed playback start (e.g. blocked autoplay) for the
// given source. The play control simply leaves the playing state; the failure
// is never surfaced as a user-facing error.
func (p *Player) PlayFailure(token string) {
	if token != p.sourceToken {
		return
	}
	p.playing = false
}

// SeekTo seeks to the given fraction of the track. The fraction is clamped to
// [0, 1] before it is multiplied with the duration, so a partial or unready
// duration never produces an out-of-range seek. Seeking is a no-op until the
// media metadata has arrived.
func (p *Player) SeekTo(fraction float64) {
	fraction = clamp01(fraction)
	if !validDuration(p.duration) {
		return
	}
	p.position = fraction * p.duration
}

// SeekClick handles a discrete click on the track. A click that terminates a
// drag gesture arrives as a synthetic event and must not cause a second seek.
func (p *Player) SeekClick(offset, width float64) {
	if p.dragging {
		return
	}
	if width <= 0 {
		return
	}
	p.SeekTo(offset / width)
}

// DragStart begins a continuous scrub gesture.
func (p *Player) DragStart(fraction float64) {
	p.dragging = true
	p.SeekTo(fraction)
}

// DragMove updates the position while a drag is active.
func (p *Player) DragMove(fraction float64) {
	if !p.dragging {
		return
	}
	p.SeekTo(fraction)
}

// DragEnd finalizes the gesture on pointer-up or pointer-leave.
func (p *Player) DragEnd(fraction float64) {
	if !p.dragging {
		return
	}
	p.SeekTo(fraction)
	p.dragging = false
}

// DragCancel aborts the gesture without a final seek.
func (p *Player) DragCancel() {
	p.dragging = false
}

// Dragging reports whether a scrub gesture is in progress.
func (p *Player) Dragging() bool {
	return p.dragging
}

// SetRate applies one of the configured playback multipliers. Unknown rates
// are ignored. The rate persists across seeks and resets on Load.
func (p *Player) SetRate(rate float64) {
	for _, r := range p.rates {
		if r == rate {
			p.rate = rate
			return
		}
	}
}

// Rate returns the active playback multiplier.
func (p *Player) Rate() float64 {
	return p.rate
}

// Rates returns the fixed set of selectable playback multipliers.
func (p *Player) Rates() []float64 {
	rates := make([]float64, len(p.rates))
	copy(rates, p.rates)
	return rates
}

// SetRateMenu opens or closes the playback-rate menu. The close capability is
// invoked by the input-dispatch boundary, e.g. for outside clicks.
func (p *Player) SetRateMenu(open bool) {
	p.rateMenuOpen = open
}

// RateMenuOpen reports whether the rate menu is showing.
func (p *Player) RateMenuOpen() bool {
	return p.rateMenuOpen
}

// MetadataLoaded records the duration reported by the media element. Events
// for a replaced source and non-positive or non-finite durations are ignored.
func (p *Player) MetadataLoaded(token string, duration float64) {
	if token != p.sourceToken {
		return
	}
	if !validDuration(duration) {
		return
	}
	p.duration = duration
	if p.position > duration {
		p.position = duration
	}
}

// TimeUpdate records the playback position reported by the media element.
func (p *Player) TimeUpdate(token string, position float64) {
	if token != p.sourceToken {
		return
	}
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return
	}
	if validDuration(p.duration) && position > p.duration {
		position = p.duration
	}
	p.position = position
}

// Ended marks that playback reached the end of the source.
func (p *Player) Ended(token string) {
	if token != p.sourceToken {
		return
	}
	p.playing = false
	if validDuration(p.duration) {
		p.position = p.duration
	}
}

// Progress returns the normalized playback fraction. ok is false while the
// duration is unknown; a reported fraction is always finite and within [0, 1].
func (p *Player) Progress() (float64, bool) {
	if !validDuration(p.duration) {
		return 0, false
	}
	return clamp01(p.position / p.duration), true
}

// Snapshot returns the current state for rendering.
func (p *Player) Snapshot() Snapshot {
	snapshot := Snapshot{
		SourceToken:  p.sourceToken,
		URL:          p.url,
		Playing:      p.playing,
		Duration:     p.duration,
		Position:     p.position,
		Progress:     nil,
		Rate:         p.rate,
		Rates:        p.Rates(),
		RateMenuOpen: p.rateMenuOpen,
		Dragging:     p.dragging,
	}
	if progress, ok := p.Progress(); ok {
		snapshot.Progress = &progress
	}
	return snapshot
}

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}
