package auction

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/d3caf/internal/logger"
	"github.com/screa/d3caf/internal/store"
	"github.com/screa/d3caf/pkg/chain"
	"github.com/screa/d3caf/pkg/types"
)

type failingSink struct{}

func (failingSink) HandleEvent(context.Context, Event) error {
	return errors.New("sink down")
}

func TestFailingSinkDoesNotAbortCommit(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer s.Close()

	rec := &Recorder{}
	a, err := New(s, chain.NewManualClock(1), Options{
		Owner: owner,
		Sinks: []EventSink{failingSink{}, rec},
	})
	require.NoError(t, err)

	require.NoError(t, a.Deposit(ctx, types.NativeAsset, requester, oneEther))
	req := types.Request{Factory: factory, ExpireAt: 5, RewardAmount: oneEther, RefundReceiver: requester}
	id, err := a.RegisterCreate2Request(ctx, Tx{From: requester, Value: oneEther}, req)
	require.NoError(t, err)

	_, err = a.GetCreate2Request(id)
	require.NoError(t, err)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, uint64(1), rec.Events()[0].Seq)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: logger.NewWriter(&buf, false)}
	id := common.HexToHash("0x42")

	req := types.Request{Factory: factory, ExpireAt: 9}
	events := []Event{
		{Kind: EventRegistered, RequestID: id, Request: &req},
		{Kind: EventNewSalt, RequestID: id, Salt: common.HexToHash("0x01")},
		{Kind: EventClaimed, RequestID: id, Solver: solver, Payout: oneEther, Commission: oneEther},
		{Kind: EventCleared, RequestID: id, Refunded: true},
	}
	for _, ev := range events {
		require.NoError(t, sink.HandleEvent(ctx, ev))
	}
	_ = sink.Logger.Sync()

	out := buf.String()
	assert.Contains(t, out, "auction event: registered")
	assert.Contains(t, out, "auction event: claimed")
	assert.Contains(t, out, solver.Hex())
	assert.Contains(t, out, id.Hex())
}
