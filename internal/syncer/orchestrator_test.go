package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastsync/forecastsync/internal/forecaststore"
	"github.com/forecastsync/forecastsync/internal/notify"
	"github.com/forecastsync/forecastsync/internal/preferences"
	"github.com/forecastsync/forecastsync/internal/provider/resilience"
	"github.com/forecastsync/forecastsync/internal/syncer"
	"github.com/forecastsync/forecastsync/internal/weather"
)

var testNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

func forecastJSON(lat, lon float64, days int) string {
	var list []string
	for i := 0; i < days; i++ {
		list = append(list, fmt.Sprintf(`{
			"dt": %d,
			"main": {"pressure": %d, "humidity": %d, "temp_max": 21.5, "temp_min": 11.0},
			"wind": {"speed": 4.1, "deg": 270},
			"weather": [{"id": %d, "main": "Clear"}]
		}`, 1000-i, 1010+i, 50+i, 800+i))
	}
	return fmt.Sprintf(`{"cod":"200","city":{"name":"Test","coord":{"lat":%g,"lon":%g}},"cnt":%d,"list":[%s]}`,
		lat, lon, days, strings.Join(list, ","))
}

const metarJSON = `{"results":1,"data":[{
	"raw_text": "KSJC 011453Z 32009KT 10SM FEW012 18/12 A2992",
	"clouds": [{"code": "FEW", "text": "Few", "base_feet_agl": 1200, "base_meters_agl": 365.8}],
	"conditions": {"code": "VFR", "text": "Visual"},
	"dewpoint": {"celsius": 12, "fahrenheit": 54},
	"flight_category": "VFR",
	"visibility": {"miles": "10", "meters": "16,093"}
}]}`

type fetchFunc func(ctx context.Context, url string, headers map[string]string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f(ctx, url, headers)
}

// staticFetcher serves the forecast body for forecast URLs and the METAR body
// for everything else.
func staticFetcher(forecast, metar string) fetchFunc {
	return func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
		if strings.Contains(url, "/metar/") {
			return []byte(metar), nil
		}
		return []byte(forecast), nil
	}
}

type fixture struct {
	prefs    *preferences.InMemoryStore
	store    *forecaststore.InMemoryRepository
	notifier *notify.Recorder
	cfg      syncer.Config
}

func newFixture(t *testing.T, prefs preferences.Preferences, fetcher syncer.Fetcher) *fixture {
	t.Helper()

	f := &fixture{
		prefs:    preferences.NewInMemoryStore(prefs),
		store:    forecaststore.NewInMemoryRepository(),
		notifier: &notify.Recorder{},
	}
	f.cfg = syncer.Config{
		URLs:            weather.MustNewURLBuilder(weather.DefaultEndpoints()),
		ForecastFetcher: fetcher,
		Preferences:     f.prefs,
		Store:           f.store,
		Notifier:        f.notifier,
		Logger:          zerolog.Nop(),
		Now:             func() time.Time { return testNow },
	}
	return f
}

func (f *fixture) orchestrator(t *testing.T) *syncer.Orchestrator {
	t.Helper()
	o, err := syncer.NewOrchestrator(f.cfg)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	var metarHeader atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "37.0", r.URL.Query().Get("lat"))
		assert.Equal(t, "-122.0", r.URL.Query().Get("lon"))
		assert.Equal(t, "5", r.URL.Query().Get("cnt"))
		_, _ = w.Write([]byte(forecastJSON(37.39, -122.08, 5)))
	})
	mux.HandleFunc("/metar/lat/37.39/lon/-122.08/decoded", func(w http.ResponseWriter, r *http.Request) {
		metarHeader.Store(r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(metarJSON))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	urls, err := weather.NewURLBuilder(weather.Endpoints{
		ForecastBaseURL: server.URL + "/forecast",
		MetarBaseURL:    server.URL + "/metar",
		TAFBaseURL:      server.URL + "/taf",
		AviationAPIKey:  "wx-key",
	})
	require.NoError(t, err)

	client := resilience.NewClient(resilience.DefaultClientConfig("e2e"))
	f := newFixture(t, preferences.Preferences{
		CoordinatesAvailable:      true,
		Latitude:                  37.0,
		Longitude:                 -122.0,
		NotificationsEnabled:      true,
		LastNotificationUTCMillis: testNow.UnixMilli() - 2*weather.DayMillis,
	}, client)
	f.cfg.URLs = urls

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, syncer.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 5, result.RowsReplaced)
	assert.True(t, result.Notified)
	assert.Equal(t, "test", result.Trigger)
	assert.NotEmpty(t, result.CycleID)
	assert.Equal(t, []syncer.State{
		syncer.StateIdle,
		syncer.StateResolving,
		syncer.StateFetchingForecast,
		syncer.StateParsingForecast,
		syncer.StateReplacing,
		syncer.StateEvaluatingNotification,
		syncer.StateFetchingAviation,
		syncer.StateParsingAviation,
		syncer.StateDone,
	}, result.States)

	rows, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)
	start := weather.StartOfDayUTC(testNow)
	for i, row := range rows {
		assert.Equal(t, start+int64(i)*weather.DayMillis, row.TimestampUTCMillis)
		assert.Equal(t, 800+i, row.ConditionCode)
	}

	snap, err := f.prefs.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.CoordinatesAvailable)
	assert.Equal(t, 37.39, snap.Latitude)
	assert.Equal(t, -122.08, snap.Longitude)
	assert.Equal(t, testNow.UnixMilli(), snap.LastNotificationUTCMillis)
	assert.Equal(t, 1, f.notifier.Count())

	assert.Equal(t, syncer.AviationFetched, result.Aviation.Status)
	require.NotNil(t, result.Aviation.Record)
	assert.Equal(t, "VFR", result.Aviation.Record.FlightCategory)
	assert.False(t, result.Aviation.Persisted)
	assert.Equal(t, "wx-key", metarHeader.Load())

	_, err = f.store.LatestAviation(context.Background())
	assert.ErrorIs(t, err, forecaststore.ErrNoAviation, "aviation is not persisted by default")
}

func TestOrchestrator_NotificationPolicy(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		elapsed  int64
		expected bool
	}{
		{"exactly one day", true, weather.DayMillis, true},
		{"one millisecond short", true, weather.DayMillis - 1, false},
		{"two days", true, 2 * weather.DayMillis, true},
		{"never notified", true, testNow.UnixMilli(), true},
		{"disabled", false, 10 * weather.DayMillis, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := testNow.UnixMilli() - tt.elapsed
			f := newFixture(t, preferences.Preferences{
				PreferredLocationName:     "Oslo",
				NotificationsEnabled:      tt.enabled,
				LastNotificationUTCMillis: last,
			}, staticFetcher(forecastJSON(59.9, 10.7, 5), metarJSON))

			result, err := f.orchestrator(t).Run(context.Background(), "test")
			require.NoError(t, err)

			assert.Equal(t, tt.expected, result.Notified)
			got, err := f.prefs.LastNotification(context.Background())
			require.NoError(t, err)
			if tt.expected {
				assert.Equal(t, 1, f.notifier.Count())
				assert.Equal(t, testNow.UnixMilli(), got)
			} else {
				assert.Equal(t, 0, f.notifier.Count())
				assert.Equal(t, last, got)
			}
		})
	}
}

func TestOrchestrator_ReplaceAllIsIdempotent(t *testing.T) {
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo", NotificationsEnabled: true},
		staticFetcher(forecastJSON(59.9, 10.7, 5), metarJSON))
	o := f.orchestrator(t)

	_, err := o.Run(context.Background(), "first")
	require.NoError(t, err)
	first, err := f.store.List(context.Background())
	require.NoError(t, err)

	second, err := o.Run(context.Background(), "second")
	require.NoError(t, err)
	rows, err := f.store.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, rows)
	assert.Equal(t, 2, f.store.ReplaceCount())
	assert.False(t, second.Notified, "notified less than a day ago")
	assert.Equal(t, 1, f.notifier.Count())
}

func TestOrchestrator_NameSelectorUsesLearnedCoordinates(t *testing.T) {
	var urls []string
	var mu sync.Mutex
	fetcher := fetchFunc(func(ctx context.Context, url string, h map[string]string) ([]byte, error) {
		mu.Lock()
		urls = append(urls, url)
		mu.Unlock()
		return staticFetcher(forecastJSON(51.51, -0.13, 3), metarJSON)(ctx, url, h)
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "London"}, fetcher)

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)

	require.Len(t, urls, 2)
	assert.Contains(t, urls[0], "q=London")
	assert.Equal(t, "https://api.checkwx.com/metar/lat/51.51/lon/-0.13/decoded", urls[1])
	assert.Equal(t, syncer.AviationFetched, result.Aviation.Status)
}

func TestOrchestrator_MalformedMetarDoesNotFailCycle(t *testing.T) {
	f := newFixture(t, preferences.Preferences{
		CoordinatesAvailable: true,
		Latitude:             37.4,
		Longitude:            -122.1,
		NotificationsEnabled: true,
	}, staticFetcher(forecastJSON(37.4, -122.1, 5), `{"data":[{"raw_text":{}}]}`))

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, syncer.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 5, result.RowsReplaced)
	assert.True(t, result.Notified)
	assert.Equal(t, 1, f.notifier.Count())

	assert.Equal(t, syncer.AviationFailed, result.Aviation.Status)
	var parseErr *weather.ParseError
	assert.True(t, errors.As(result.Aviation.Err, &parseErr))
	assert.Equal(t, syncer.StateDone, result.FinalState())
}

func TestOrchestrator_AviationFetchErrorDoesNotFailCycle(t *testing.T) {
	fetcher := fetchFunc(func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
		if strings.Contains(url, "/metar/") {
			return nil, &weather.NetworkError{URL: url, StatusCode: http.StatusUnauthorized, Err: errors.New("unauthorized")}
		}
		return []byte(forecastJSON(37.4, -122.1, 2)), nil
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "San Jose"}, fetcher)

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeSuccess, result.Outcome)
	assert.Equal(t, syncer.AviationFailed, result.Aviation.Status)

	var netErr *weather.NetworkError
	require.True(t, errors.As(result.Aviation.Err, &netErr))
	assert.Equal(t, http.StatusUnauthorized, netErr.StatusCode)
}

func TestOrchestrator_PersistAviation(t *testing.T) {
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "San Jose"},
		staticFetcher(forecastJSON(37.4, -122.1, 2), metarJSON))
	f.cfg.PersistAviation = true

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)
	assert.True(t, result.Aviation.Persisted)

	rec, err := f.store.LatestAviation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KSJC 011453Z 32009KT 10SM FEW012 18/12 A2992", rec.RawText)
	assert.Equal(t, testNow, rec.ObservedAt)
}

func TestOrchestrator_NoData(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"city not found", `{"cod":"404","message":"city not found"}`},
		{"other provider error", `{"cod":401,"message":"Invalid API key"}`},
		{"no days", `{"cod":"200","city":{"coord":{"lat":1,"lon":2}},"list":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, preferences.Preferences{
				PreferredLocationName: "Atlantis",
				NotificationsEnabled:  true,
			}, staticFetcher(tt.payload, metarJSON))
			existing := []weather.ForecastRecord{{TimestampUTCMillis: 1, ConditionCode: 500}}
			require.NoError(t, f.store.ReplaceAll(context.Background(), existing))

			result, err := f.orchestrator(t).Run(context.Background(), "test")
			require.NoError(t, err)

			assert.Equal(t, syncer.OutcomeNoData, result.Outcome)
			assert.Zero(t, result.RowsReplaced)
			assert.False(t, result.Notified)
			assert.Equal(t, 0, f.notifier.Count())
			assert.Equal(t, syncer.AviationSkipped, result.Aviation.Status)
			assert.Equal(t, syncer.StateDone, result.FinalState())

			rows, err := f.store.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, existing, rows)
			assert.Equal(t, 1, f.store.ReplaceCount())
		})
	}
}

func TestOrchestrator_ForecastFailureLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   fetchFunc
		state     syncer.State
		checkType func(t *testing.T, err error)
	}{
		{
			name: "network error",
			fetcher: func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
				return nil, &weather.NetworkError{URL: url, StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}
			},
			state: syncer.StateFetchingForecast,
			checkType: func(t *testing.T, err error) {
				var netErr *weather.NetworkError
				assert.True(t, errors.As(err, &netErr))
			},
		},
		{
			name:    "parse error",
			fetcher: staticFetcher(`{"cod":"200","city":{"coord":{"lat":1,"lon":2}},"list":[{"main":{}}]}`, metarJSON),
			state:   syncer.StateParsingForecast,
			checkType: func(t *testing.T, err error) {
				var parseErr *weather.ParseError
				assert.True(t, errors.As(err, &parseErr))
				assert.False(t, weather.IsNoData(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo", NotificationsEnabled: true}, tt.fetcher)
			existing := []weather.ForecastRecord{{TimestampUTCMillis: 1}}
			require.NoError(t, f.store.ReplaceAll(context.Background(), existing))

			result, err := f.orchestrator(t).Run(context.Background(), "test")
			require.Error(t, err)

			var cycleErr *syncer.CycleError
			require.True(t, errors.As(err, &cycleErr))
			assert.Equal(t, tt.state, cycleErr.State)
			tt.checkType(t, err)

			assert.Equal(t, syncer.OutcomeFailed, result.Outcome)
			assert.Equal(t, syncer.StateFailed, result.FinalState())
			assert.NotEmpty(t, result.Error)
			assert.Equal(t, 0, f.notifier.Count())

			rows, err := f.store.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, existing, rows)

			available, err := f.prefs.CoordinatesAvailable(context.Background())
			require.NoError(t, err)
			assert.False(t, available)
		})
	}
}

type failingStore struct {
	*forecaststore.InMemoryRepository
}

func (failingStore) ReplaceAll(context.Context, []weather.ForecastRecord) error {
	return errors.New("disk full")
}

func TestOrchestrator_StoreFailure(t *testing.T) {
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo", NotificationsEnabled: true},
		staticFetcher(forecastJSON(59.9, 10.7, 5), metarJSON))
	f.cfg.Store = failingStore{forecaststore.NewInMemoryRepository()}

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.Error(t, err)

	var storeErr *weather.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "replace_all", storeErr.Op)

	var cycleErr *syncer.CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, syncer.StateReplacing, cycleErr.State)
	assert.False(t, result.Notified)
	assert.Equal(t, 0, f.notifier.Count())
}

func TestOrchestrator_NoLocationConfigured(t *testing.T) {
	f := newFixture(t, preferences.Preferences{}, staticFetcher(forecastJSON(1, 2, 1), metarJSON))

	_, err := f.orchestrator(t).Run(context.Background(), "test")

	var cycleErr *syncer.CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, syncer.StateResolving, cycleErr.State)
	assert.ErrorIs(t, err, preferences.ErrNoLocation)
}

func TestOrchestrator_CanceledContext(t *testing.T) {
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo"}, staticFetcher(forecastJSON(1, 2, 1), metarJSON))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orchestrator(t).Run(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.store.ReplaceCount())
}

func TestOrchestrator_CycleTimeout(t *testing.T) {
	fetcher := fetchFunc(func(ctx context.Context, _ string, _ map[string]string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo"}, fetcher)
	f.cfg.CycleTimeout = 20 * time.Millisecond

	_, err := f.orchestrator(t).Run(context.Background(), "test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrchestrator_TryRunWhileInProgress(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	fetcher := fetchFunc(func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
		once.Do(func() { close(entered) })
		<-release
		return staticFetcher(forecastJSON(1, 2, 1), metarJSON)(context.Background(), url, nil)
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo"}, fetcher)
	o := f.orchestrator(t)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), "first")
		done <- err
	}()

	<-entered
	assert.True(t, o.Running())

	result, err := o.TryRun(context.Background(), "second")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, syncer.ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
	assert.Equal(t, 1, f.store.ReplaceCount())

	result, err = o.TryRun(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, "third", result.Trigger)
	assert.Same(t, result, o.LastResult())
}

func TestNewOrchestrator_Validation(t *testing.T) {
	f := newFixture(t, preferences.Preferences{}, staticFetcher("", ""))

	tests := []struct {
		name   string
		modify func(*syncer.Config)
	}{
		{"urls", func(c *syncer.Config) { c.URLs = nil }},
		{"fetcher", func(c *syncer.Config) { c.ForecastFetcher = nil }},
		{"preferences", func(c *syncer.Config) { c.Preferences = nil }},
		{"store", func(c *syncer.Config) { c.Store = nil }},
		{"notifier", func(c *syncer.Config) { c.Notifier = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := f.cfg
			tt.modify(&cfg)
			_, err := syncer.NewOrchestrator(cfg)
			assert.Error(t, err)
		})
	}
}

// ctxStore fails notification reads and writes once ctx is done, like a
// database driver would.
type ctxStore struct {
	*preferences.InMemoryStore
}

func (s ctxStore) NotificationsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.InMemoryStore.NotificationsEnabled(ctx)
}

func (s ctxStore) LastNotification(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.InMemoryStore.LastNotification(ctx)
}

func (s ctxStore) SetLastNotification(ctx context.Context, millis int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.SetLastNotification(ctx, millis)
}

// cancelAfterReplace cancels the cycle right after the rows are committed.
type cancelAfterReplace struct {
	*forecaststore.InMemoryRepository
	cancel context.CancelFunc
}

func (s cancelAfterReplace) ReplaceAll(ctx context.Context, records []weather.ForecastRecord) error {
	err := s.InMemoryRepository.ReplaceAll(ctx, records)
	s.cancel()
	return err
}

func TestOrchestrator_CancelAfterReplaceStillRecordsNotification(t *testing.T) {
	f := newFixture(t, preferences.Preferences{
		PreferredLocationName:     "Oslo",
		NotificationsEnabled:      true,
		LastNotificationUTCMillis: testNow.UnixMilli() - 2*weather.DayMillis,
	}, staticFetcher(forecastJSON(59.9, 10.7, 5), metarJSON))
	f.cfg.Preferences = ctxStore{f.prefs}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.cfg.Store = cancelAfterReplace{InMemoryRepository: f.store, cancel: cancel}
	o := f.orchestrator(t)

	result, err := o.Run(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, syncer.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 5, result.RowsReplaced)
	assert.True(t, result.Notified)
	assert.Empty(t, result.NotificationError)
	assert.Equal(t, 1, f.notifier.Count())

	last, err := f.prefs.LastNotification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow.UnixMilli(), last)

	f.cfg.Store = f.store
	result, err = f.orchestrator(t).Run(context.Background(), "second")
	require.NoError(t, err)
	assert.False(t, result.Notified)
	assert.Equal(t, 1, f.notifier.Count(), "no second notification within a day")
}

type unwritablePrefs struct {
	*preferences.InMemoryStore
}

func (unwritablePrefs) SetLastNotification(context.Context, int64) error {
	return errors.New("read-only preferences")
}

func TestOrchestrator_NotificationWriteFailureDoesNotFailCycle(t *testing.T) {
	f := newFixture(t, preferences.Preferences{
		PreferredLocationName: "Oslo",
		NotificationsEnabled:  true,
	}, staticFetcher(forecastJSON(59.9, 10.7, 5), metarJSON))
	f.cfg.Preferences = unwritablePrefs{f.prefs}

	result, err := f.orchestrator(t).Run(context.Background(), "test")
	require.NoError(t, err)

	assert.Equal(t, syncer.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 5, result.RowsReplaced)
	assert.False(t, result.Notified)
	assert.Contains(t, result.NotificationError, "read-only preferences")
	assert.Equal(t, 0, f.notifier.Count(), "nothing is sent when the timestamp cannot be stored")
	assert.Equal(t, syncer.AviationFetched, result.Aviation.Status)
	assert.Equal(t, syncer.StateDone, result.FinalState())
}

func TestOrchestrator_RunWaitsForInFlightCycle(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	fetcher := fetchFunc(func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return staticFetcher(forecastJSON(1, 2, 1), metarJSON)(context.Background(), url, nil)
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo"}, fetcher)
	o := f.orchestrator(t)

	first := make(chan *syncer.CycleResult, 1)
	go func() {
		result, err := o.Run(context.Background(), "first")
		assert.NoError(t, err)
		first <- result
	}()
	<-entered

	second := make(chan *syncer.CycleResult, 1)
	go func() {
		result, err := o.Run(context.Background(), "second")
		assert.NoError(t, err)
		second <- result
	}()

	select {
	case <-second:
		t.Fatal("second cycle ran while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, f.store.ReplaceCount())

	close(release)
	assert.Equal(t, "first", (<-first).Trigger)
	assert.Equal(t, "second", (<-second).Trigger)
	assert.Equal(t, 2, f.store.ReplaceCount())
	assert.Equal(t, "second", o.LastResult().Trigger)
}

func TestOrchestrator_QueuedRunHonoursContext(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	fetcher := fetchFunc(func(_ context.Context, url string, _ map[string]string) ([]byte, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return staticFetcher(forecastJSON(1, 2, 1), metarJSON)(context.Background(), url, nil)
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "Oslo"}, fetcher)
	o := f.orchestrator(t)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), "first")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result, err := o.Run(ctx, "queued")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = o.Run(canceled, "queued")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.store.ReplaceCount())
	assert.Equal(t, "first", o.LastResult().Trigger)
}

func TestOrchestrator_RenamedLocationIsLookedUpByName(t *testing.T) {
	var urls []string
	var mu sync.Mutex
	fetcher := fetchFunc(func(ctx context.Context, url string, h map[string]string) ([]byte, error) {
		mu.Lock()
		urls = append(urls, url)
		mu.Unlock()
		return staticFetcher(forecastJSON(51.51, -0.13, 3), metarJSON)(ctx, url, h)
	})
	f := newFixture(t, preferences.Preferences{PreferredLocationName: "London"}, fetcher)
	o := f.orchestrator(t)

	_, err := o.Run(context.Background(), "first")
	require.NoError(t, err)
	available, err := f.prefs.CoordinatesAvailable(context.Background())
	require.NoError(t, err)
	require.True(t, available, "coordinates learned from the first forecast")

	paris := "Paris"
	_, err = f.prefs.Update(context.Background(), preferences.Update{PreferredLocationName: &paris})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "second")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, urls, 4)
	assert.Contains(t, urls[2], "q=Paris")
	assert.NotContains(t, urls[2], "lat=")
}
