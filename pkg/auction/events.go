package auction

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/logger"
	"github.com/screa/d3caf/pkg/types"
)

// EventKind names an observable state transition
type EventKind string

const (
	EventRegistered EventKind = "registered"
	EventNewSalt    EventKind = "new_salt"
	EventClaimed    EventKind = "claimed"
	EventCleared    EventKind = "cleared"
)

// Event carries enough data for an observer to replay a state transition.
// Fields not relevant to Kind are left zero.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	RequestID common.Hash    `json:"requestId"`
	Height    uint64         `json:"height"`
	Request   *types.Request `json:"request,omitempty"`

	// new_salt
	Salt      common.Hash    `json:"salt,omitempty"`
	Submitter common.Address `json:"submitter,omitempty"`

	// claimed
	Solver       common.Address `json:"solver,omitempty"`
	RewardAmount *uint256.Int   `json:"rewardAmount,omitempty"`
	Commission   *uint256.Int   `json:"commission,omitempty"`
	Payout       *uint256.Int   `json:"payout,omitempty"`

	// address computed from the salt involved (new_salt, claimed)
	Address common.Address `json:"address,omitempty"`

	// cleared
	Refunded bool `json:"refunded,omitempty"`
}

// EventSink receives events after the transition that produced them has committed
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// HandleEvent appends ev
func (r *Recorder) HandleEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of one kind
func (r *Recorder) OfKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// LogSink writes events to a logger
type LogSink struct {
	Logger *logger.Logger
}

// HandleEvent logs ev at info level
func (s LogSink) HandleEvent(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.Uint64("seq", ev.Seq),
		zap.String("requestId", ev.RequestID.Hex()),
		zap.Uint64("height", ev.Height),
	}
	switch ev.Kind {
	case EventRegistered:
		fields = append(fields,
			zap.String("factory", ev.Request.Factory.Hex()),
			zap.Uint64("expireAt", ev.Request.ExpireAt),
			zap.String("rewardAmount", ev.Request.Amount().Dec()),
		)
	case EventNewSalt:
		fields = append(fields,
			zap.String("salt", ev.Salt.Hex()),
			zap.String("address", ev.Address.Hex()),
		)
	case EventClaimed:
		fields = append(fields,
			zap.String("solver", ev.Solver.Hex()),
			zap.String("payout", ev.Payout.Dec()),
			zap.String("commission", ev.Commission.Dec()),
			zap.String("address", ev.Address.Hex()),
		)
	case EventCleared:
		fields = append(fields, zap.Bool("refunded", ev.Refunded))
	}
	s.Logger.Info("auction event: "+string(ev.Kind), fields...)
	return nil
}
