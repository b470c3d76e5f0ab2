package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

const heartbeatInterval = 15 * time.Second

type changesApi struct {
	feed      core.ChangeFeed
	heartbeat time.Duration
}

func registerChangesAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := changesApi{feed: deps.Feed, heartbeat: heartbeatInterval}
	g.GET("/changes", api.stream, queryTokenMiddleware, jwt)
}

// queryTokenMiddleware lets EventSource clients, which cannot set headers, pass their token as `?token=`.
func queryTokenMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		if token := ctx.QueryParam("token"); token != "" && req.Header.Get(echo.HeaderAuthorization) == "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		return next(ctx)
	}
}

// pendingTables coalesces the notifications received between two writes to the client.
type pendingTables struct {
	mu     sync.Mutex
	tables map[string]struct{}
	signal chan struct{}
}

func newPendingTables() *pendingTables {
	return &pendingTables{tables: make(map[string]struct{}), signal: make(chan struct{}, 1)}
}

func (p *pendingTables) add(table string) {
	p.mu.Lock()
	p.tables[table] = struct{}{}
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *pendingTables) drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	tables := make([]string, 0, len(p.tables))
	for table := range p.tables {
		tables = append(tables, table)
	}
	p.tables = make(map[string]struct{})
	sort.Strings(tables)
	return tables
}

// stream pushes a server-sent `change` event each time one of the `table` query tables changes
// (every table when none is given), until the client goes away.
func (api *changesApi) stream(ctx echo.Context) error {
	tables := ctx.QueryParams()["table"]
	if len(tables) == 0 {
		tables = core.FeedTables
	}
	for _, table := range tables {
		if !core.IsFeedTable(table) {
			return core.NewValidationError(nil, core.FieldError{Field: "table", Error: "unknown table " + table})
		}
	}

	rctx, cancel := context.WithCancel(ctx.Request().Context())
	defer cancel()

	pending := newPendingTables()
	for _, table := range tables {
		table := table
		if _, err := api.feed.Subscribe(rctx, table, func() { pending.add(table) }); err != nil {
			return errors.Wrapf(err, "subscribing to %s changes", table)
		}
	}

	res := ctx.Response()
	// streams outlive the server's write timeout
	_ = http.NewResponseController(res.Writer).SetWriteDeadline(time.Time{})
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(api.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-rctx.Done():
			return nil
		case <-pending.signal:
			for _, table := range pending.drain() {
				if _, err := fmt.Fprintf(res, "event: change\ndata: {\"table\":%q}\n\n", table); err != nil {
					return nil
				}
			}
			res.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
