package fieldsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", "key")
	require.ErrorIs(t, err, errBaseURLRequired)
}

func TestGetAvailable(t *testing.T) {
	locationID, partID := uuid.New(), uuid.New()
	var capturedPath, capturedKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedKey = r.Header.Get(apiKeyHeader)
		_, _ = io.WriteString(w, `{"available":12}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", "secret")
	require.NoError(t, err)

	got, err := client.GetAvailable(context.Background(), locationID, partID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, got)
	assert.Equal(t, fmt.Sprintf("/v1/stock/%s/%s", locationID, partID), capturedPath)
	assert.Equal(t, "secret", capturedKey)
}

func TestGetAvailableNotFoundIsDependencyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such stock record", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	_, err = client.GetAvailable(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, err.Error(), "404")
}

func TestGetAvailableMissingFieldIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	require.NoError(t, err)
	_, err = client.GetAvailable(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestReferencesExist(t *testing.T) {
	knownLoc, unknownLoc := uuid.New(), uuid.New()
	knownPart, unknownPart := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/references:check", r.URL.Path)
		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["location_ids"], 2)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"missing_location_ids": []string{unknownLoc.String()},
			"missing_part_ids":     []string{unknownPart.String()},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	refs, err := client.ReferencesExist(context.Background(), []uuid.UUID{knownLoc, unknownLoc}, []uuid.UUID{knownPart, unknownPart})
	require.NoError(t, err)
	assert.True(t, refs.Known(knownLoc, knownPart))
	assert.False(t, refs.Known(unknownLoc, knownPart))
	assert.False(t, refs.Known(knownLoc, unknownPart))
}

func TestReferencesExistEmptyInputSkipsCall(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", "")
	require.NoError(t, err)
	refs, err := client.ReferencesExist(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, refs.Known(uuid.New(), uuid.New()))
}

func TestDealerCandidatesAndTrust(t *testing.T) {
	locationID, partID := uuid.New(), uuid.New()
	d1, d2 := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/dealers/candidates":
			assert.Equal(t, locationID.String(), r.URL.Query().Get("location_id"))
			assert.Equal(t, partID.String(), r.URL.Query().Get("part_id"))
			_ = json.NewEncoder(w).Encode(map[string]any{"dealer_ids": []string{d1.String(), d2.String()}})
		case "/v1/dealers/trust":
			_ = json.NewEncoder(w).Encode(map[string]any{"scores": map[string]int{d1.String(): 82}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	candidates, err := client.DealerCandidates(context.Background(), locationID, partID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{d1, d2}, candidates)

	scores, err := client.DealerTrust(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{d1: 82}, scores)
}

func TestDealerTrustRejectsOutOfRange(t *testing.T) {
	d1 := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, fmt.Sprintf(`{"scores":{%q:140}}`, d1.String()))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	require.NoError(t, err)
	_, err = client.DealerTrust(context.Background(), []uuid.UUID{d1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type fakeTrustSource struct {
	scores map[uuid.UUID]int
	calls  [][]uuid.UUID
}

func (f *fakeTrustSource) DealerTrust(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	f.calls = append(f.calls, ids)
	out := map[uuid.UUID]int{}
	for _, id := range ids {
		if score, ok := f.scores[id]; ok {
			out[id] = score
		}
	}
	return out, nil
}

type memoryTrustStore struct {
	data    map[string]string
	readErr error
	reads   int
}

func (m *memoryTrustStore) GetMany(_ context.Context, keys []string) (map[string]string, error) {
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	hits := map[string]string{}
	for _, key := range keys {
		if v, ok := m.data[key]; ok {
			hits[key] = v
		}
	}
	return hits, nil
}

func (m *memoryTrustStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryTrustStore) DealerTrustKey(dealerID string) string {
	return strings.Join([]string{"fs", "dealer_trust", dealerID}, ":")
}

func TestTrustCacheFetchesOnlyMisses(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	source := &fakeTrustSource{scores: map[uuid.UUID]int{d1: 75, d2: 40}}
	store := &memoryTrustStore{data: map[string]string{}}
	cache, err := NewTrustCache(source, store, time.Minute, nil)
	require.NoError(t, err)

	scores, err := cache.DealerTrust(context.Background(), []uuid.UUID{d1, d2})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{d1: 75, d2: 40}, scores)
	require.Len(t, source.calls, 1)

	scores, err = cache.DealerTrust(context.Background(), []uuid.UUID{d1, d2})
	require.NoError(t, err)
	assert.Equal(t, 75, scores[d1])
	assert.Len(t, source.calls, 1, "second lookup should be served from cache")
}

func TestTrustCacheIgnoresCorruptEntries(t *testing.T) {
	d1 := uuid.New()
	source := &fakeTrustSource{scores: map[uuid.UUID]int{d1: 90}}
	store := &memoryTrustStore{data: map[string]string{}}
	store.data[store.DealerTrustKey(d1.String())] = "not-a-number"
	cache, err := NewTrustCache(source, store, 0, nil)
	require.NoError(t, err)

	scores, err := cache.DealerTrust(context.Background(), []uuid.UUID{d1})
	require.NoError(t, err)
	assert.Equal(t, 90, scores[d1])
	assert.Equal(t, "90", store.data[store.DealerTrustKey(d1.String())])
}

func TestTrustCacheDropsOutOfRangeSourceScores(t *testing.T) {
	good, high, negative := uuid.New(), uuid.New(), uuid.New()
	source := &fakeTrustSource{scores: map[uuid.UUID]int{good: 60, high: 140, negative: -5}}
	store := &memoryTrustStore{data: map[string]string{}}
	cache, err := NewTrustCache(source, store, time.Minute, nil)
	require.NoError(t, err)

	scores, err := cache.DealerTrust(context.Background(), []uuid.UUID{good, high, negative})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{good: 60}, scores)
	assert.Equal(t, map[string]string{store.DealerTrustKey(good.String()): "60"}, store.data)
}

func TestTrustCacheBatchesReadsAndDegradesOnFailure(t *testing.T) {
	d1, d2 := uuid.New(), uuid.New()
	source := &fakeTrustSource{scores: map[uuid.UUID]int{d1: 20, d2: 55}}
	store := &memoryTrustStore{data: map[string]string{}, readErr: redis.ErrClosed}
	cache, err := NewTrustCache(source, store, time.Minute, nil)
	require.NoError(t, err)

	scores, err := cache.DealerTrust(context.Background(), []uuid.UUID{d1, d2})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{d1: 20, d2: 55}, scores)
	assert.Equal(t, 1, store.reads, "one batched read per lookup")
	require.Len(t, source.calls, 1)
	assert.ElementsMatch(t, []uuid.UUID{d1, d2}, source.calls[0])
}
