package changefeed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

// memoryFeed notifies the subscribers of this process only, synchronously.
type memoryFeed struct {
	hub *hub
}

var _ core.ChangeFeed = (*memoryFeed)(nil)

func NewMemoryFeed() core.ChangeFeed {
	return &memoryFeed{hub: newHub()}
}

func (f *memoryFeed) Publish(_ context.Context, table string) error {
	if !core.IsFeedTable(table) {
		return errors.Wrap(errUnknownTable, table)
	}
	f.hub.dispatch(table)
	return nil
}

func (f *memoryFeed) Subscribe(ctx context.Context, table string, fn func()) (func(), error) {
	return f.hub.subscribe(ctx, table, fn)
}

func (f *memoryFeed) Close() error {
	f.hub.clear()
	return nil
}
