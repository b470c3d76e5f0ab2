package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/firststep/core/document"
)

type documentRepository struct {
	db *DB
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(db *DB) document.Repository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) QueryDocuments(_ context.Context, filter document.QueryFilter) ([]document.Document, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	docs := make([]document.Document, 0)
	for _, doc := range repo.db.documents {
		if search != "" && !strings.Contains(strings.ToLower(doc.Name), search) &&
			!strings.Contains(strings.ToLower(doc.Description), search) {
			continue
		}
		if filter.Mandatory != nil && doc.IsMandatory != *filter.Mandatory {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	return docs, nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id int) (document.Document, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if doc, ok := repo.db.documents[id]; ok {
		return doc, nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) CreateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.documentSeq++
	doc.ID = repo.db.documentSeq
	repo.db.documents[doc.ID] = doc
	return doc, nil
}

func (repo *documentRepository) UpdateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.documents[doc.ID]; !ok {
		return document.Document{}, document.ErrNotFound
	}
	repo.db.documents[doc.ID] = doc
	return doc, nil
}

func (repo *documentRepository) DeleteDocument(_ context.Context, id int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.documents[id]; !ok {
		return document.ErrNotFound
	}
	delete(repo.db.documents, id)
	return nil
}

func (repo *documentRepository) CountDocuments(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.documents), nil
}
