package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idmask/internal/audit"
	"idmask/internal/sessionstore"
	dErrors "idmask/pkg/domain-errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequence(ids ...string) IDGenerator {
	i := 0
	return func() (string, error) {
		if i >= len(ids) {
			return "", errors.New("exhausted")
		}
		id := ids[i]
		i++
		return id, nil
	}
}

func newService(t *testing.T, gen IDGenerator, maxSize int) (*Service, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	store := sessionstore.NewInMemoryStore[json.RawMessage](sessionstore.NamespaceOwnership, maxSize)
	return NewService(sessionstore.NamespaceOwnership, store, gen, audit.NewPublisher(sink), discardLogger()), sink
}

func TestNumericID(t *testing.T) {
	for range 200 {
		id, err := NumericID()
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{6}$`), id)
	}
}

func TestBase36ID(t *testing.T) {
	seen := map[string]bool{}
	for range 200 {
		id, err := Base36ID()
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]{8}$`), id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestCreateFulfillRetrieve(t *testing.T) {
	ctx := context.Background()
	svc, sink := newService(t, sequence("1234567"), 10)

	id, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234567", id)

	got, err := svc.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	require.NoError(t, svc.Fulfill(ctx, id, json.RawMessage(`{"r":"1","s":"2"}`)))
	got, err = svc.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"1","s":"2"}`, string(got))

	require.NoError(t, svc.Fulfill(ctx, id, json.RawMessage(`"second"`)))
	got, err = svc.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `"second"`, string(got))

	assert.Equal(t, []audit.EventType{
		audit.EventCorrelationCreated,
		audit.EventCorrelationFilled,
		audit.EventCorrelationFilled,
	}, sink.Types())
	assert.Equal(t, "ownership", sink.Events()[0].Namespace)
}

func TestCreateSkipsTakenIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, sequence("1000001", "1000001", "1000002"), 10)

	first, err := svc.Create(ctx)
	require.NoError(t, err)
	second, err := svc.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, "1000001", first)
	assert.Equal(t, "1000002", second)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, func() (string, error) { return "1000001", nil }, 10)

	_, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Create(ctx)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestRetrieveUnknownOrEvicted(t *testing.T) {
	ctx := context.Background()
	store := sessionstore.NewInMemoryStore[json.RawMessage](sessionstore.NamespaceOwnership, 1)
	svc := NewService(sessionstore.NamespaceOwnership, store, sequence("1000001", "1000002"), nil, discardLogger())

	got, err := svc.Retrieve(ctx, "nope")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	first, err := svc.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Fulfill(ctx, first, json.RawMessage(`{"a":1}`)))
	_, err = svc.Create(ctx)
	require.NoError(t, err)
	evicted, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, evicted)

	got, err = svc.Retrieve(ctx, first)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))
}

func TestFulfillUnknownIDCreatesSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, sequence(), 10)

	require.NoError(t, svc.Fulfill(ctx, "abc", json.RawMessage(`[1,2]`)))
	got, err := svc.Retrieve(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))
}

func TestFulfillRejects(t *testing.T) {
	ctx := context.Background()
	svc, sink := newService(t, sequence(), 10)
	big := make([]byte, MaxValueBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	big[0], big[len(big)-1] = '"', '"'

	cases := []struct {
		name  string
		id    string
		value json.RawMessage
		code  dErrors.Code
	}{
		{"missing id", "", json.RawMessage(`{}`), dErrors.CodeValidation},
		{"missing value", "1", nil, dErrors.CodeValidation},
		{"null value", "1", json.RawMessage(`null`), dErrors.CodeValidation},
		{"too large", "1", json.RawMessage(big), dErrors.CodeValidation},
		{"malformed", "1", json.RawMessage(`{"a"`), dErrors.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Fulfill(ctx, tc.id, tc.value)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	assert.Empty(t, sink.Events())
}
