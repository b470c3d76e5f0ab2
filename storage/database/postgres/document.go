package postgresdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core/document"
)

type documentRepository struct {
	db *sqlx.DB
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(db *sqlx.DB) document.Repository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) QueryDocuments(ctx context.Context, filter document.QueryFilter) ([]document.Document, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	if filter.Mandatory != nil {
		args = append(args, *filter.Mandatory)
		where = append(where, fmt.Sprintf("is_mandatory = $%d", len(args)))
	}

	q := "SELECT * FROM documents"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	docs := make([]document.Document, 0)
	err := repo.db.SelectContext(ctx, &docs, q+" ORDER BY created_at DESC, id DESC", args...)
	return docs, errors.Wrap(err, "selecting documents")
}

func (repo *documentRepository) GetDocument(ctx context.Context, id int) (document.Document, error) {
	var doc document.Document
	if err := repo.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id); err != nil {
		return document.Document{}, notFound(err, document.ErrNotFound)
	}
	return doc, nil
}

func (repo *documentRepository) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	q := `INSERT INTO documents (name, description, file_url, is_mandatory, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := repo.db.GetContext(ctx, &doc.ID, q,
		doc.Name, doc.Description, doc.FileURL, doc.IsMandatory, doc.CreatedAt); err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return doc, nil
}

func (repo *documentRepository) UpdateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	q := `UPDATE documents SET name = :name, description = :description, file_url = :file_url,
			is_mandatory = :is_mandatory
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, doc)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "updating document")
	}
	if err = checkAffected(res, document.ErrNotFound); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

func (repo *documentRepository) DeleteDocument(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return checkAffected(res, document.ErrNotFound)
}

func (repo *documentRepository) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM documents")
	return n, errors.Wrap(err, "counting documents")
}
