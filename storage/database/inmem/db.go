// Package inmemdb implements every repository in memory, for tests and single-process dev runs.
package inmemdb

import (
	"sync"

	"github.com/trezcool/firststep/core/access"
	"github.com/trezcool/firststep/core/document"
	"github.com/trezcool/firststep/core/journey"
	"github.com/trezcool/firststep/core/user"
)

type signOffKey struct {
	userID  string
	stageID int
}

type permKey struct {
	userID   string
	accessID int
}

// DB holds every table behind a single lock.
type DB struct {
	mu sync.RWMutex

	users     map[string]*user.User
	stages    map[int]journey.Stage
	tasks     map[int]journey.Task
	courses   map[int]journey.Course
	progress  map[int64]journey.ProgressRecord
	signOffs  map[signOffKey]journey.SignOff
	documents map[int]document.Document
	accesses  map[int]access.Access
	perms     map[permKey]access.Permission

	stageSeq, taskSeq, courseSeq, documentSeq, accessSeq int
	progressSeq, permSeq                                 int64
}

func NewDB() *DB {
	return &DB{
		users:     make(map[string]*user.User),
		stages:    make(map[int]journey.Stage),
		tasks:     make(map[int]journey.Task),
		courses:   make(map[int]journey.Course),
		progress:  make(map[int64]journey.ProgressRecord),
		signOffs:  make(map[signOffKey]journey.SignOff),
		documents: make(map[int]document.Document),
		accesses:  make(map[int]access.Access),
		perms:     make(map[permKey]access.Permission),
	}
}

// InsertRawProgress stores rec as is, bypassing every check. Tests use it to plant malformed records.
func (db *DB) InsertRawProgress(rec journey.ProgressRecord) journey.ProgressRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.progressSeq++
	rec.ID = db.progressSeq
	db.progress[rec.ID] = rec
	return rec
}
