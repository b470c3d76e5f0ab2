package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/firststep/core"
)

// redisFeed relays notifications through a redis pub/sub channel.
type redisFeed struct {
	rdb     *redis.Client
	sub     *redis.PubSub
	channel string
	logger  core.Logger
	hub     *hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ core.ChangeFeed = (*redisFeed)(nil)

func NewRedisFeed(addr string, db int, channel string, logger core.Logger) (core.ChangeFeed, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}

	sub := rdb.Subscribe(ctx, channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = rdb.Close()
		return nil, errors.Wrap(err, "subscribing to "+channel)
	}

	fwdCtx, fwdCancel := context.WithCancel(context.Background())
	f := &redisFeed{
		rdb:     rdb,
		sub:     sub,
		channel: channel,
		logger:  logger,
		hub:     newHub(),
		cancel:  fwdCancel,
	}
	f.wg.Add(1)
	go f.forward(fwdCtx)
	return f, nil
}

func (f *redisFeed) forward(ctx context.Context) {
	defer f.wg.Done()
	ch := f.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			if !core.IsFeedTable(m.Payload) {
				f.logger.Warn("change feed: unknown table " + m.Payload)
				continue
			}
			f.hub.dispatch(m.Payload)
		}
	}
}

func (f *redisFeed) Publish(ctx context.Context, table string) error {
	if !core.IsFeedTable(table) {
		return errors.Wrap(errUnknownTable, table)
	}
	return errors.Wrap(f.rdb.Publish(ctx, f.channel, table).Err(), "publishing "+table+" change")
}

func (f *redisFeed) Subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	return f.hub.subscribe(ctx, table, fn)
}

func (f *redisFeed) Close() error {
	f.cancel()
	subErr := f.sub.Close()
	f.wg.Wait()
	f.hub.clear()
	if err := f.rdb.Close(); err != nil {
		return errors.Wrap(err, "closing redis client")
	}
	return errors.Wrap(subErr, "closing subscription")
}
