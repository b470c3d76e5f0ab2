package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// postgresFeed publishes with pg_notify and receives through a LISTEN connection,
// so every API instance sharing the database sees every change.
type postgresFeed struct {
	db       *sqlx.DB
	channel  string
	listener *pq.Listener
	logger   core.Logger
	hub      *hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ core.ChangeFeed = (*postgresFeed)(nil)

func NewPostgresFeed(db *sqlx.DB, dsn, channel string, logger core.Logger) (core.ChangeFeed, error) {
	f := &postgresFeed{
		db:      db,
		channel: channel,
		logger:  logger,
		hub:     newHub(),
	}
	f.listener = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, f.onListenerEvent)
	if err := f.listener.Listen(channel); err != nil {
		_ = f.listener.Close()
		return nil, errors.Wrap(err, "listening on "+channel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.wg.Add(1)
	go f.forward(ctx)
	return f, nil
}

func (f *postgresFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		f.logger.Warn("change feed listener: connection lost", err)
	case pq.ListenerEventReconnected:
		f.logger.Info("change feed listener: reconnected")
	}
}

func (f *postgresFeed) forward(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected: notifications sent meanwhile are lost
				f.hub.dispatchAll()
				continue
			}
			if core.IsFeedTable(n.Extra) {
				f.hub.dispatch(n.Extra)
			}
		case <-time.After(listenerPingInterval):
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn("change feed listener: ping failed", err)
				}
			}()
		}
	}
}

func (f *postgresFeed) Publish(ctx context.Context, table string) error {
	if !core.IsFeedTable(table) {
		return errors.Wrap(errUnknownTable, table)
	}
	if _, err := f.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", f.channel, table); err != nil {
		return errors.Wrap(err, "notifying "+table+" change")
	}
	return nil
}

func (f *postgresFeed) Subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	return f.hub.subscribe(ctx, table, fn)
}

func (f *postgresFeed) Close() error {
	f.cancel()
	err := f.listener.Close()
	f.wg.Wait()
	f.hub.clear()
	return errors.Wrap(err, "closing listener")
}
