package core

import "context"

// Tables whose changes are published on the ChangeFeed.
const (
	TableUsers     = "users"
	TableStages    = "stages"
	TableTasks     = "tasks"
	TableCourses   = "courses"
	TableProgress  = "progress_records"
	TableSignOffs  = "stage_sign_offs"
	TableDocuments = "documents"
	TableAccesses  = "accesses"
	TablePerms     = "access_permissions"
)

var FeedTables = []string{
	TableUsers, TableStages, TableTasks, TableCourses, TableProgress,
	TableSignOffs, TableDocuments, TableAccesses, TablePerms,
}

// ChangeFeed notifies subscribers that a table's content changed.
// Notifications carry no payload: subscribers refetch what they need.
type ChangeFeed interface {
	Publish(ctx context.Context, table string) error
	// Subscribe registers fn for table changes until unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, table string, fn func()) (unsubscribe func(), err error)
	Close() error
}

func IsFeedTable(table string) bool {
	for _, t := range FeedTables {
		if t == table {
			return true
		}
	}
	return false
}
