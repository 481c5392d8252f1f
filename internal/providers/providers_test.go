package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"landed-cost-service/internal/httpx"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

type mockFallbackRepo struct {
	mock.Mock
}

var _ repository.FallbackRepository = (*mockFallbackRepo)(nil)

func (m *mockFallbackRepo) GetTariffOverride(ctx context.Context, code string) (*models.TariffRateOverride, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TariffRateOverride), args.Error(1)
}

func (m *mockFallbackRepo) GetVatRate(ctx context.Context, cc string) (*models.VatRate, error) {
	args := m.Called(ctx, cc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VatRate), args.Error(1)
}

func (m *mockFallbackRepo) GetEuTaricRate(ctx context.Context, hs, origin string, pref bool) (*models.EuTaricRate, error) {
	args := m.Called(ctx, hs, origin, pref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EuTaricRate), args.Error(1)
}

func (m *mockFallbackRepo) GetFxRate(ctx context.Context, base, quote string, date time.Time) (*models.FxRateDaily, error) {
	args := m.Called(ctx, base, quote, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FxRateDaily), args.Error(1)
}

func (m *mockFallbackRepo) UpsertFxRate(ctx context.Context, row *models.FxRateDaily) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

type mockSnapshotRepo struct {
	mock.Mock
}

var _ repository.RateSnapshotRepository = (*mockSnapshotRepo)(nil)

func (m *mockSnapshotRepo) Save(ctx context.Context, snap *models.RateSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *mockSnapshotRepo) GetValid(ctx context.Context, shipmentID uuid.UUID, provider models.ProviderType, requestKey datatypes.JSON) (*models.RateSnapshot, error) {
	args := m.Called(ctx, shipmentID, provider, requestKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RateSnapshot), args.Error(1)
}

func ukRequestKey(t *testing.T, commodityCode string) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"commodity_code": commodityCode})
	require.NoError(t, err)
	return raw
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestUKTariffRedisHit(t *testing.T) {
	c := newFakeCache()
	rate := decimal.RequireFromString("0.08")
	require.NoError(t, c.Set(context.Background(), "uk_tariff:6103420000",
		DutyRateResult{Rate: &rate, Source: SourceUKAPI}, time.Hour))

	p := NewUKTariffProvider(c, nil, &mockFallbackRepo{}, nil,
		httpx.NewCircuitBreaker(3, 30*time.Second), "http://unused", quietLogger())

	got, err := p.Rate(context.Background(), "6103420000", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceRedis, got.Source)
	assert.True(t, got.Rate.Equal(rate))
	assert.False(t, got.Missing)
}

func TestUKTariffParsesMeasureExpression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"included": [
				{"type": "footnote", "attributes": {}},
				{"type": "measure", "attributes": {"duty_expression": "8.00 %"}}
			]
		}`))
	}))
	defer srv.Close()

	snaps := &mockSnapshotRepo{}
	p := NewUKTariffProvider(newFakeCache(), snaps, &mockFallbackRepo{},
		httpx.NewFetcher(quietLogger(), nil), httpx.NewCircuitBreaker(3, 30*time.Second),
		srv.URL, quietLogger())

	got, err := p.Rate(context.Background(), "6103420000", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceUKAPI, got.Source)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("0.08")))
	assert.False(t, got.IsEstimated)
}

func TestUKTariffFallsBackToOverrideWhenBreakerOpen(t *testing.T) {
	fb := &mockFallbackRepo{}
	rate := decimal.RequireFromString("0.12")
	fb.On("GetTariffOverride", mock.Anything, "6103420000").
		Return(&models.TariffRateOverride{CommodityCode: "6103420000", DutyRate: rate}, nil)

	br := httpx.NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		br.RecordFailure()
	}

	p := NewUKTariffProvider(newFakeCache(), nil, fb, nil, br, "http://unused", quietLogger())

	got, err := p.Rate(context.Background(), "6103420000", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceOverride, got.Source)
	assert.True(t, got.IsEstimated)
	assert.True(t, got.Rate.Equal(rate))
}

func TestUKTariffMissing(t *testing.T) {
	fb := &mockFallbackRepo{}
	fb.On("GetTariffOverride", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)

	br := httpx.NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		br.RecordFailure()
	}

	p := NewUKTariffProvider(newFakeCache(), nil, fb, nil, br, "http://unused", quietLogger())

	got, err := p.Rate(context.Background(), "9999999999", nil)
	require.NoError(t, err)
	assert.True(t, got.Missing)
	assert.True(t, got.IsEstimated)
	assert.Nil(t, got.Rate)
}

func TestUKTariffWritesSnapshotWithShipmentContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"included": [{"type": "measure", "attributes": {"duty_expression": "5 %"}}]}`))
	}))
	defer srv.Close()

	shipmentID := uuid.New()
	snaps := &mockSnapshotRepo{}
	snaps.On("GetValid", mock.Anything, shipmentID, models.ProviderUKTariff,
		ukRequestKey(t, "6103420000")).Return(nil, repository.ErrNotFound)
	snaps.On("Save", mock.Anything, mock.MatchedBy(func(s *models.RateSnapshot) bool {
		// raw upstream body, not the parsed rate shape
		return s.ShipmentID == shipmentID && s.Provider == models.ProviderUKTariff &&
			s.TTLSeconds == 86400 && strings.Contains(string(s.ResponsePayload), "included")
	})).Return(nil)

	p := NewUKTariffProvider(newFakeCache(), snaps, &mockFallbackRepo{},
		httpx.NewFetcher(quietLogger(), nil), httpx.NewCircuitBreaker(3, 30*time.Second),
		srv.URL, quietLogger())

	got, err := p.Rate(context.Background(), "6103420000", &shipmentID)
	require.NoError(t, err)
	assert.Equal(t, SourceUKAPI, got.Source)
	snaps.AssertExpectations(t)
}

func TestUKTariffSnapshotTierIsKeyedPerCommodity(t *testing.T) {
	shipmentID := uuid.New()
	payload := []byte(`{"included": [{"type": "measure", "attributes": {"duty_expression": "6.50 %"}}]}`)

	snaps := &mockSnapshotRepo{}
	snaps.On("GetValid", mock.Anything, shipmentID, models.ProviderUKTariff,
		ukRequestKey(t, "6103420000")).
		Return(&models.RateSnapshot{ResponsePayload: payload}, nil)
	snaps.On("GetValid", mock.Anything, shipmentID, models.ProviderUKTariff,
		ukRequestKey(t, "0202100000")).
		Return(nil, repository.ErrNotFound)

	fb := &mockFallbackRepo{}
	fb.On("GetTariffOverride", mock.Anything, "0202100000").Return(nil, repository.ErrNotFound)

	br := httpx.NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		br.RecordFailure()
	}
	p := NewUKTariffProvider(newFakeCache(), snaps, fb, nil, br, "http://unused", quietLogger())

	// item A replays its own snapshot even when a different commodity
	// was fetched more recently for the same shipment
	got, err := p.Rate(context.Background(), "6103420000", &shipmentID)
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, got.Source)
	require.NotNil(t, got.Rate)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("0.065")))

	// item B has no snapshot of its own and falls through
	got2, err := p.Rate(context.Background(), "0202100000", &shipmentID)
	require.NoError(t, err)
	assert.True(t, got2.Missing)
	snaps.AssertExpectations(t)
}

func TestEUTaricDBFallback(t *testing.T) {
	fb := &mockFallbackRepo{}
	rate := decimal.RequireFromString("0.12")
	fb.On("GetEuTaricRate", mock.Anything, "6103420000", "CN", false).
		Return(&models.EuTaricRate{DutyRate: rate}, nil)

	p := NewEUTaricProvider(newFakeCache(), nil, fb, nil,
		httpx.NewCircuitBreaker(3, 30*time.Second), "", "", quietLogger())

	got, err := p.Rate(context.Background(), "6103420000", "cn", false, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceDB, got.Source)
	assert.True(t, got.IsEstimated)
	assert.True(t, got.Rate.Equal(rate))
}

func TestVatExtractionShapes(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"rates": {"standard": {"rate": 20.0}}}`, "0.2"},
		{`{"rates": {"goods": {"rate": 19.0}}}`, "0.19"},
		{`{"standard_rate": 0.21}`, "0.21"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(tc.body))
		}))

		fb := &mockFallbackRepo{}
		fb.On("GetVatRate", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)

		p := NewVatProvider(newFakeCache(), nil, fb, httpx.NewFetcher(quietLogger(), nil),
			httpx.NewCircuitBreaker(3, 30*time.Second), srv.URL, "", quietLogger())

		got, err := p.StandardRate(context.Background(), "DE", nil)
		require.NoError(t, err)
		require.NotNil(t, got.Rate, "body %s", tc.body)
		assert.True(t, got.Rate.Equal(decimal.RequireFromString(tc.want)), "body %s", tc.body)
		srv.Close()
	}
}

func TestFxIdentity(t *testing.T) {
	p := NewFxProvider(newFakeCache(), nil, &mockFallbackRepo{}, nil,
		httpx.NewCircuitBreaker(3, 30*time.Second), "http://unused", quietLogger())

	got, err := p.Rate(context.Background(), "GBP", "GBP", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceIdentity, got.Source)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(1)))
}

func TestFxEcbParseAndPersist(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{
			"dataSets": [{"series": {"0:0:0:0:0": {"observations": {"0": [0.8532]}}}}],
			"structure": {"dimensions": {"observation": [{"values": [{"id": "2026-08-21"}]}]}}
		}`))
	}))
	defer srv.Close()

	fb := &mockFallbackRepo{}
	fb.On("GetFxRate", mock.Anything, "USD", "GBP", mock.Anything).Return(nil, repository.ErrNotFound)
	fb.On("UpsertFxRate", mock.Anything, mock.MatchedBy(func(row *models.FxRateDaily) bool {
		return row.BaseCurrency == "USD" && row.QuoteCurrency == "GBP" &&
			row.Rate.Equal(decimal.RequireFromString("0.8532")) &&
			row.RateDate.Format("2006-01-02") == "2026-08-21"
	})).Return(nil)

	p := NewFxProvider(newFakeCache(), nil, fb, httpx.NewFetcher(quietLogger(), nil),
		httpx.NewCircuitBreaker(3, 30*time.Second), srv.URL, quietLogger())

	got, err := p.Rate(context.Background(), "USD", "GBP", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceECB, got.Source)
	assert.Equal(t, "2026-08-21", got.RateDate)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("0.8532")))
	fb.AssertExpectations(t)

	// second call is served from the fast cache
	got2, err := p.Rate(context.Background(), "USD", "GBP", nil)
	require.NoError(t, err)
	assert.Equal(t, SourceRedis, got2.Source)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
