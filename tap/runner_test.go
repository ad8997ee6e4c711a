package tap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/tap-freshdesk/filter"
	"github.com/s0up4200/tap-freshdesk/freshdesk"
)

type getCall struct {
	resource string
	params   url.Values
}

// fakeClient serves canned pages per resource
type fakeClient struct {
	mu     sync.Mutex
	pages  map[string][][]any
	errs   map[string]error
	calls  []getCall
	closed int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages: make(map[string][][]any),
		errs:  make(map[string]error),
	}
}

func (f *fakeClient) Get(ctx context.Context, resource string, params url.Values) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := url.Values{}
	for k, v := range params {
		copied[k] = append([]string(nil), v...)
	}

	// filtered passes are served separately, e.g. "tickets?filter=deleted"
	key := resource
	if value := params.Get("filter"); value != "" {
		key += "?filter=" + value
	}
	f.calls = append(f.calls, getCall{resource: key, params: copied})

	if err, ok := f.errs[key]; ok {
		return nil, err
	}

	page, _ := strconv.Atoi(params.Get("page"))
	pages := f.pages[key]
	if page >= 1 && page <= len(pages) {
		return pages[page-1], nil
	}
	return []any{}, nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeClient) callsFor(resource string) []getCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []getCall
	for _, c := range f.calls {
		if c.resource == resource {
			out = append(out, c)
		}
	}
	return out
}

func rec(id int, updatedAt string) map[string]any {
	return map[string]any{"id": float64(id), "updated_at": updatedAt}
}

func page(records ...map[string]any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

// readMessages parses the emitted lines
func readMessages(t *testing.T, buf *bytes.Buffer) []Message {
	t.Helper()

	var msgs []Message
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var msg Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func recordIDs(msgs []Message, stream string) []float64 {
	var ids []float64
	for _, m := range msgs {
		if m.Type == MessageRecord && m.Stream == stream {
			ids = append(ids, m.Record["id"].(float64))
		}
	}
	return ids
}

type runnerFixture struct {
	client *fakeClient
	store  *FileStore
	out    *bytes.Buffer
}

func newFixture(t *testing.T) *runnerFixture {
	return &runnerFixture{
		client: newFakeClient(),
		store:  NewFileStore(filepath.Join(t.TempDir(), "state.json")),
		out:    &bytes.Buffer{},
	}
}

func (f *runnerFixture) runner(opts ...RunnerOption) *Runner {
	factory := func(ctx context.Context) (Client, error) {
		return f.client, nil
	}
	opts = append([]RunnerOption{WithPageSize(2)}, opts...)
	return NewRunner(factory, f.store, NewEmitter(f.out), zerolog.Nop(), opts...)
}

func TestRunnerPaginatesUntilShortPage(t *testing.T) {
	fx := newFixture(t)
	fx.client.pages["groups"] = [][]any{
		page(rec(1, "2024-01-01T00:00:00Z"), rec(2, "2024-01-02T00:00:00Z")),
		page(rec(3, "2024-01-03T00:00:00Z")),
	}

	sel, err := Select([]string{"groups"})
	require.NoError(t, err)
	require.NoError(t, fx.runner().Run(context.Background(), sel))

	calls := fx.client.callsFor("groups")
	require.Len(t, calls, 2)
	assert.Equal(t, "1", calls[0].params.Get("page"))
	assert.Equal(t, "2", calls[1].params.Get("page"))
	assert.Equal(t, "2", calls[0].params.Get("per_page"))

	msgs := readMessages(t, fx.out)
	assert.Equal(t, []float64{1, 2, 3}, recordIDs(msgs, "groups"))
	assert.Equal(t, MessageState, msgs[len(msgs)-1].Type)
	assert.Equal(t, 1, fx.client.closed)

	state, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	bookmark, ok := state.Bookmark("groups", "updated_at")
	require.True(t, ok)
	assert.Equal(t, "2024-01-03T00:00:00Z", bookmark.Format(time.RFC3339))
}

func TestRunnerResumesFromBookmark(t *testing.T) {
	fx := newFixture(t)
	state := NewState()
	state.SetBookmark("tickets", "updated_at", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, fx.store.Save(context.Background(), state))

	fx.client.pages["tickets"] = [][]any{
		page(rec(1, "2024-01-01T00:00:00Z"), rec(2, "2024-01-05T00:00:00Z")),
	}

	sel, err := Select([]string{"tickets"})
	require.NoError(t, err)
	runner := fx.runner(WithStartDate(time.Date(2019, 1, 4, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, runner.Run(context.Background(), sel))

	calls := fx.client.callsFor("tickets")
	require.Len(t, calls, 1)
	assert.Equal(t, "2024-01-02T00:00:00Z", calls[0].params.Get("updated_since"))
	assert.Equal(t, "updated_at", calls[0].params.Get("order_by"))
	assert.Equal(t, "requester,company,stats", calls[0].params.Get("include"))

	assert.Equal(t, []float64{2}, recordIDs(readMessages(t, fx.out), "tickets"))

	loaded, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	bookmark, _ := loaded.Bookmark("tickets", "updated_at")
	assert.Equal(t, "2024-01-05T00:00:00Z", bookmark.Format(time.RFC3339))
}

func TestRunnerStartDate(t *testing.T) {
	fx := newFixture(t)
	fx.client.pages["agents"] = [][]any{
		page(rec(1, "2018-06-01T00:00:00Z"), rec(2, "2020-01-01T00:00:00Z")),
	}

	sel, err := Select([]string{"agents"})
	require.NoError(t, err)
	runner := fx.runner(WithStartDate(time.Date(2019, 1, 4, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, runner.Run(context.Background(), sel))

	// agents has no server side filter
	calls := fx.client.callsFor("agents")
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].params.Get("updated_since"))

	assert.Equal(t, []float64{2}, recordIDs(readMessages(t, fx.out), "agents"))
}

func TestRunnerFilters(t *testing.T) {
	fx := newFixture(t)
	low := rec(1, "2024-01-01T00:00:00Z")
	low["priority"] = float64(1)
	high := rec(2, "2024-01-02T00:00:00Z")
	high["priority"] = float64(4)
	fx.client.pages["companies"] = [][]any{page(low, high)}

	f, err := filter.Compile(`priority >= 3`)
	require.NoError(t, err)

	sel, err := Select([]string{"companies"})
	require.NoError(t, err)
	runner := fx.runner(WithFilters(map[string]*filter.Filter{"companies": f}))
	require.NoError(t, runner.Run(context.Background(), sel))

	assert.Equal(t, []float64{2}, recordIDs(readMessages(t, fx.out), "companies"))
}

func TestRunnerChildStream(t *testing.T) {
	fx := newFixture(t)
	fx.client.pages["tickets"] = [][]any{
		page(rec(10, "2024-01-01T00:00:00Z"), rec(11, "2024-01-02T00:00:00Z")),
		page(),
	}
	fx.client.pages["tickets/10/conversations"] = [][]any{
		page(rec(100, "2024-01-01T01:00:00Z")),
	}
	fx.client.pages["tickets/11/conversations"] = [][]any{
		page(rec(110, "2024-01-02T01:00:00Z"), rec(111, "2024-01-02T02:00:00Z")),
		page(rec(112, "2024-01-03T00:00:00Z")),
	}

	sel, err := Select([]string{"conversations"})
	require.NoError(t, err)
	require.NoError(t, fx.runner().Run(context.Background(), sel))

	msgs := readMessages(t, fx.out)
	assert.Empty(t, recordIDs(msgs, "tickets"), "parent is traversed but not emitted")
	assert.ElementsMatch(t, []float64{100, 110, 111, 112}, recordIDs(msgs, "conversations"))
	assert.Len(t, fx.client.callsFor("tickets/11/conversations"), 2)

	state, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	_, ok := state.Bookmark("tickets", "updated_at")
	assert.False(t, ok)
	bookmark, ok := state.Bookmark("conversations", "updated_at")
	require.True(t, ok)
	assert.Equal(t, "2024-01-03T00:00:00Z", bookmark.Format(time.RFC3339))
}

func TestRunnerChildAccessDeniedKeepsParentProgress(t *testing.T) {
	fx := newFixture(t)
	fx.client.pages["tickets"] = [][]any{
		page(rec(10, "2024-01-01T00:00:00Z"), rec(11, "2024-01-02T00:00:00Z")),
		page(),
	}
	fx.client.errs["tickets/10/conversations"] = freshdesk.ClassifyResponse(403, nil)
	fx.client.pages["tickets/11/conversations"] = [][]any{
		page(rec(110, "2024-01-02T01:00:00Z")),
	}

	sel, err := Select([]string{"tickets", "conversations"})
	require.NoError(t, err)
	require.NoError(t, fx.runner().Run(context.Background(), sel))

	msgs := readMessages(t, fx.out)
	assert.Equal(t, []float64{10, 11}, recordIDs(msgs, "tickets"))
	assert.Equal(t, []float64{110}, recordIDs(msgs, "conversations"))

	state, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	bookmark, ok := state.Bookmark("tickets", "updated_at")
	require.True(t, ok)
	assert.Equal(t, "2024-01-02T00:00:00Z", bookmark.Format(time.RFC3339))
	bookmark, ok = state.Bookmark("conversations", "updated_at")
	require.True(t, ok)
	assert.Equal(t, "2024-01-02T01:00:00Z", bookmark.Format(time.RFC3339))
}

func TestRunnerTicketVariants(t *testing.T) {
	fx := newFixture(t)
	state := NewState()
	state.SetBookmark("tickets_spam", "updated_at", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, fx.store.Save(context.Background(), state))

	fx.client.pages["tickets"] = [][]any{page(rec(1, "2024-01-01T00:00:00Z"))}
	fx.client.pages["tickets?filter=deleted"] = [][]any{page(rec(20, "2024-01-05T00:00:00Z"))}
	fx.client.errs["tickets?filter=spam"] = freshdesk.ClassifyResponse(403, nil)

	sel, err := Select([]string{"tickets"})
	require.NoError(t, err)
	require.NoError(t, fx.runner().Run(context.Background(), sel))

	assert.Equal(t, []float64{1, 20}, recordIDs(readMessages(t, fx.out), "tickets"))

	deleted := fx.client.callsFor("tickets?filter=deleted")
	require.Len(t, deleted, 1)
	assert.Equal(t, "updated_at", deleted[0].params.Get("order_by"))
	assert.Equal(t, "2024-02-01T00:00:00Z", fx.client.callsFor("tickets?filter=spam")[0].params.Get("updated_since"))

	loaded, err := fx.store.Load(context.Background())
	require.NoError(t, err)
	bookmark, _ := loaded.Bookmark("tickets", "updated_at")
	assert.Equal(t, "2024-01-01T00:00:00Z", bookmark.Format(time.RFC3339))
	bookmark, _ = loaded.Bookmark("tickets_deleted", "updated_at")
	assert.Equal(t, "2024-01-05T00:00:00Z", bookmark.Format(time.RFC3339))
	// an access denied pass keeps its old bookmark
	bookmark, _ = loaded.Bookmark("tickets_spam", "updated_at")
	assert.Equal(t, "2024-02-01T00:00:00Z", bookmark.Format(time.RFC3339))
}

func TestRunnerSkipsAccessDenied(t *testing.T) {
	fx := newFixture(t)
	fx.client.errs["surveys/satisfaction_ratings"] = freshdesk.ClassifyResponse(403, nil)
	fx.client.pages["roles"] = [][]any{page(rec(1, "2024-01-01T00:00:00Z"))}

	sel, err := Select([]string{"satisfaction_ratings", "roles"})
	require.NoError(t, err)
	require.NoError(t, fx.runner().Run(context.Background(), sel))

	assert.Equal(t, []float64{1}, recordIDs(readMessages(t, fx.out), "roles"))
}

func TestRunnerStreamFailure(t *testing.T) {
	fx := newFixture(t)
	fx.client.errs["agents"] = freshdesk.ClassifyResponse(404, nil)

	sel, err := Select([]string{"agents"})
	require.NoError(t, err)
	err = fx.runner().Run(context.Background(), sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream agents")
	assert.True(t, errors.Is(err, freshdesk.ErrNotFound))

	// the final state is still written
	msgs := readMessages(t, fx.out)
	require.NotEmpty(t, msgs)
	assert.Equal(t, MessageState, msgs[len(msgs)-1].Type)
}

func TestRunnerClientFactoryFailure(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	factory := func(ctx context.Context) (Client, error) {
		return nil, errors.New("no session")
	}

	sel, err := Select([]string{"roles"})
	require.NoError(t, err)
	err = NewRunner(factory, store, NewEmitter(&bytes.Buffer{}), zerolog.Nop()).Run(context.Background(), sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
}

func TestRunnerUnexpectedPayload(t *testing.T) {
	fx := newFixture(t)
	client := &objectClient{}
	factory := func(ctx context.Context) (Client, error) { return client, nil }

	sel, err := Select([]string{"roles"})
	require.NoError(t, err)
	err = NewRunner(factory, fx.store, NewEmitter(fx.out), zerolog.Nop()).Run(context.Background(), sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected map[string]interface {} payload")
}

// objectClient answers every call with a JSON object instead of a list
type objectClient struct{}

func (objectClient) Get(ctx context.Context, resource string, params url.Values) (any, error) {
	return map[string]any{"id": float64(1)}, nil
}

func (objectClient) Close() {}
