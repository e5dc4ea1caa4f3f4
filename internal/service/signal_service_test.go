package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProducer struct {
	res domain.SignalResult
}

func (p *stubProducer) Produce(_ context.Context, input any) domain.SignalResult {
	res := p.res
	if inst, ok := input.(domain.Instrument); ok && res.Instrument == "" {
		res.Instrument = inst
	}
	return res
}

type memStore struct {
	inserted []domain.SignalResult
	err      error
}

func (m *memStore) Insert(_ context.Context, res domain.SignalResult) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, res)
	return nil
}
func (m *memStore) GetLatest(context.Context, domain.Instrument) (domain.SignalResult, error) {
	return domain.SignalResult{}, domain.ErrNotFound
}
func (m *memStore) ListRecent(context.Context, domain.Instrument, int) ([]domain.SignalResult, error) {
	return nil, nil
}
func (m *memStore) ListBefore(context.Context, time.Time) ([]domain.SignalResult, error) {
	return nil, nil
}
func (m *memStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memStore) Count(context.Context) (int64, error)                   { return 0, nil }

type memPeers struct {
	published []domain.PeerSignal
}

func (m *memPeers) Peers(context.Context, domain.Instrument, string) ([]domain.PeerSignal, error) {
	return nil, nil
}
func (m *memPeers) Publish(_ context.Context, _ domain.Instrument, sig domain.PeerSignal) error {
	m.published = append(m.published, sig)
	return nil
}

type memBus struct {
	channels []string
	appended []string
}

func (m *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	m.channels = append(m.channels, channel)
	return nil
}
func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (m *memBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	m.appended = append(m.appended, stream)
	return nil
}
func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memLocks struct {
	denied   bool
	acquired []string
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if m.denied {
		return nil, errors.New("lock held")
	}
	m.acquired = append(m.acquired, key)
	return func() {}, nil
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}
func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testConfig() SignalServiceConfig {
	return SignalServiceConfig{
		Instruments:         []domain.Instrument{"BTCUSDT"},
		Interval:            time.Second,
		LockTTL:             time.Second,
		PublishChannel:      "signals",
		PublishStream:       "signals:stream",
		NotifyMinConfidence: 80,
	}
}

func TestRunOncePersistsAndPublishes(t *testing.T) {
	producer := &stubProducer{res: domain.SignalResult{
		ID:         "sig-1",
		Producer:   "bookpulse",
		Signal:     domain.SignalBuy,
		Confidence: 88,
		Timestamp:  time.Now().UTC(),
	}}
	store := &memStore{}
	peers := &memPeers{}
	bus := &memBus{}
	locks := &memLocks{}

	svc := NewSignalService(testConfig(), producer, store, peers, bus, locks, nil, nil, discardLogger())
	results := svc.RunOnce(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, domain.SignalBuy, results[0].Signal)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "sig-1", store.inserted[0].ID)

	require.Len(t, peers.published, 1)
	assert.Equal(t, "bookpulse", peers.published[0].Producer)
	assert.Equal(t, 88, peers.published[0].Confidence)

	assert.ElementsMatch(t, []string{"signals", "signals:BTCUSDT"}, bus.channels)
	assert.Equal(t, []string{"signals:stream"}, bus.appended)

	require.Len(t, locks.acquired, 1)
	assert.Equal(t, "produce:BTCUSDT", locks.acquired[0])
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	producer := &stubProducer{res: domain.SignalResult{Signal: domain.SignalBuy, Confidence: 90}}
	store := &memStore{}
	locks := &memLocks{denied: true}

	svc := NewSignalService(testConfig(), producer, store, nil, nil, locks, nil, nil, discardLogger())
	results := svc.RunOnce(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, domain.SignalNeutral, results[0].Signal)
	assert.Empty(t, store.inserted)
}

func TestErrorResultGoesToAuditNotPeers(t *testing.T) {
	producer := &stubProducer{res: domain.SignalResult{
		Signal:      domain.SignalNeutral,
		Confidence:  0,
		ErrorCode:   domain.ErrCodeInvalidOrderBook,
		Explanation: "order book is empty",
	}}
	store := &memStore{}
	peers := &memPeers{}
	bus := &memBus{}
	audit := &memAudit{}

	svc := NewSignalService(testConfig(), producer, store, peers, bus, nil, audit, nil, discardLogger())
	svc.RunOnce(context.Background())

	// Error results are persisted for traceability but never shared with
	// peers or the consensus stream.
	require.Len(t, store.inserted, 1)
	assert.Empty(t, peers.published)
	assert.Empty(t, bus.channels)
	assert.Equal(t, []string{"signal.error"}, audit.events)
}

func TestInsertFailureStillPublishes(t *testing.T) {
	producer := &stubProducer{res: domain.SignalResult{Signal: domain.SignalSell, Confidence: 83}}
	store := &memStore{err: errors.New("db down")}
	bus := &memBus{}

	svc := NewSignalService(testConfig(), producer, store, nil, bus, nil, nil, nil, discardLogger())
	svc.RunOnce(context.Background())

	assert.NotEmpty(t, bus.channels)
}
