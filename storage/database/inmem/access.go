package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/firststep/core/access"
)

type accessRepository struct {
	db *DB
}

var _ access.Repository = (*accessRepository)(nil)

func NewAccessRepository(db *DB) access.Repository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) QueryAccesses(_ context.Context) ([]access.Access, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	accesses := make([]access.Access, 0, len(repo.db.accesses))
	for _, a := range repo.db.accesses {
		accesses = append(accesses, a)
	}
	sort.Slice(accesses, func(i, j int) bool {
		if !accesses[i].CreatedAt.Equal(accesses[j].CreatedAt) {
			return accesses[i].CreatedAt.After(accesses[j].CreatedAt)
		}
		return accesses[i].ID > accesses[j].ID
	})
	return accesses, nil
}

func (repo *accessRepository) GetAccess(_ context.Context, id int) (access.Access, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.accesses[id]; ok {
		return a, nil
	}
	return access.Access{}, access.ErrNotFound
}

func (repo *accessRepository) CreateAccess(_ context.Context, a access.Access) (access.Access, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.accessSeq++
	a.ID = repo.db.accessSeq
	repo.db.accesses[a.ID] = a
	return a, nil
}

func (repo *accessRepository) UpdateAccess(_ context.Context, a access.Access) (access.Access, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.accesses[a.ID]; !ok {
		return access.Access{}, access.ErrNotFound
	}
	repo.db.accesses[a.ID] = a
	return a, nil
}

func (repo *accessRepository) DeleteAccess(_ context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.accesses[id]; !ok {
		return access.ErrNotFound
	}
	delete(repo.db.accesses, id)
	for key := range repo.db.perms {
		if key.accessID == id {
			delete(repo.db.perms, key)
		}
	}
	return nil
}

func (repo *accessRepository) CountAccesses(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.accesses), nil
}

func (repo *accessRepository) QueryPermissions(_ context.Context, userID string) ([]access.Permission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	perms := make([]access.Permission, 0)
	for key, p := range repo.db.perms {
		if key.userID != userID {
			continue
		}
		a := repo.db.accesses[key.accessID]
		p.AccessName = a.Name
		p.AccessLogo = a.Logo
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		ni, nj := strings.ToLower(perms[i].AccessName), strings.ToLower(perms[j].AccessName)
		if ni != nj {
			return ni < nj
		}
		return perms[i].AccessID < perms[j].AccessID
	})
	return perms, nil
}

func (repo *accessRepository) UpsertPermissions(_ context.Context, userID string, accessIDs []int, status string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range accessIDs {
		if _, ok := repo.db.accesses[id]; !ok {
			return access.ErrNotFound
		}
	}

	now := time.Now().UTC()
	for _, id := range accessIDs {
		key := permKey{userID: userID, accessID: id}
		p, ok := repo.db.perms[key]
		if !ok {
			repo.db.permSeq++
			p = access.Permission{ID: repo.db.permSeq, UserID: userID, AccessID: id, CreatedAt: now}
		}
		p.Status = status
		p.UpdatedAt = now
		repo.db.perms[key] = p
	}
	return nil
}
