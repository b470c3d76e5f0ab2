package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core"
	"github.com/trezcool/firststep/core/document"
	"github.com/trezcool/firststep/core/user"
	inmemdb "github.com/trezcool/firststep/storage/database/inmem"
)

// subscribeSignal reports every Subscribe made on the wrapped feed.
type subscribeSignal struct {
	core.ChangeFeed
	subscribed chan string
}

func (f *subscribeSignal) Subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	unsub, err := f.ChangeFeed.Subscribe(ctx, table, fn)
	f.subscribed <- table
	return unsub, err
}

// streamRecorder hands over every write made by a streaming handler.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	writes chan string
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), writes: make(chan string, 32)}
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	n, err := r.ResponseRecorder.Write(p)
	r.mu.Unlock()
	r.writes <- string(p)
	return n, err
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	r.ResponseRecorder.Flush()
	r.mu.Unlock()
}

func (r *streamRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case w := <-r.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("no write from the stream")
		return ""
	}
}

func Test_changesApi_stream_validation(t *testing.T) {
	app := setup(t)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/changes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid query token", path: "/v1/changes?token=lol", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "unknown table", path: "/v1/changes?table=documents&table=lol", token: app.getToken(t, jane),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"table": "unknown table lol"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func Test_changesApi_stream(t *testing.T) {
	app := setup(t)
	jane := app.createUser(t, "Jane Doe", "jane", []string{user.RoleOnboardee}, true)

	feed := &subscribeSignal{ChangeFeed: app.deps.Feed, subscribed: make(chan string, 8)}
	app.deps.Feed = feed
	app.deps.DocumentSvc = document.NewService(inmemdb.NewDocumentRepository(inmemdb.NewDB()), feed, app.deps.Logger)
	app.srv = NewServer(app.deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/changes?table=documents&table=accesses&token="+app.getToken(t, jane), nil)
	req = req.WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		app.srv.ServeHTTP(rec, req)
	}()

	assert.Equal(t, ": connected\n\n", rec.next(t))
	for i := 0; i < 2; i++ {
		select {
		case <-feed.subscribed:
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not subscribe")
		}
	}

	// not streamed
	require.NoError(t, feed.Publish(context.Background(), core.TableUsers))

	_, err := app.deps.DocumentSvc.Create(context.Background(), document.NewDocument{Name: "Handbook", FileURL: "https://docs.test.cd/handbook.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "event: change\ndata: {\"table\":\"documents\"}\n\n", rec.next(t))

	require.NoError(t, feed.Publish(context.Background(), core.TableAccesses))
	assert.Equal(t, "event: change\ndata: {\"table\":\"accesses\"}\n\n", rec.next(t))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end with the request")
	}

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func Test_pendingTables(t *testing.T) {
	pending := newPendingTables()

	pending.add(core.TableUsers)
	pending.add(core.TableDocuments)
	pending.add(core.TableUsers)

	select {
	case <-pending.signal:
	default:
		t.Fatal("no signal")
	}
	select {
	case <-pending.signal:
		t.Fatal("signals are coalesced")
	default:
	}
	assert.Equal(t, []string{core.TableDocuments, core.TableUsers}, pending.drain())
	assert.Empty(t, pending.drain())
}
