// Package document manages the documents every onboardee is expected to read or sign.
package document

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/firststep/core"
)

var ErrNotFound = errors.New("document not found")

type (
	Document struct {
		ID          int       `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		FileURL     string    `json:"file_url" db:"file_url"`
		IsMandatory bool      `json:"is_mandatory" db:"is_mandatory"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"`
	}

	NewDocument struct {
		Name        string `json:"name" validate:"required,max=255"`
		Description string `json:"description"`
		FileURL     string `json:"file_url" validate:"required,url"`
		IsMandatory bool   `json:"is_mandatory"`
	}

	UpdateDocument struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
		Description *string `json:"description"`
		FileURL     *string `json:"file_url" validate:"omitempty,url"`
		IsMandatory *bool   `json:"is_mandatory"`
	}

	QueryFilter struct {
		Search    string `query:"search"`
		Mandatory *bool  `query:"mandatory"`
	}

	Repository interface {
		// QueryDocuments lists the documents matching filter, newest first.
		QueryDocuments(ctx context.Context, filter QueryFilter) ([]Document, error)
		GetDocument(ctx context.Context, id int) (Document, error)
		CreateDocument(ctx context.Context, doc Document) (Document, error)
		UpdateDocument(ctx context.Context, doc Document) (Document, error)
		DeleteDocument(ctx context.Context, id int) error
		CountDocuments(ctx context.Context) (int, error)
	}

	Service struct {
		repo   Repository
		feed   core.ChangeFeed
		logger core.Logger
	}
)

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name)
	nd.Description = core.CleanString(nd.Description)
	nd.FileURL = core.CleanString(nd.FileURL)
	return validate.Struct(nd)
}

func (ud *UpdateDocument) Validate(validate *validator.Validate) error {
	if ud.Name != nil {
		name := core.CleanString(*ud.Name)
		ud.Name = &name
	}
	if ud.FileURL != nil {
		url := core.CleanString(*ud.FileURL)
		ud.FileURL = &url
	}
	return validate.Struct(ud)
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

func NewService(repo Repository, feed core.ChangeFeed, logger core.Logger) *Service {
	return &Service{repo: repo, feed: feed, logger: logger}
}

func (svc *Service) changed(ctx context.Context) {
	if err := svc.feed.Publish(ctx, core.TableDocuments); err != nil {
		svc.logger.Warn("publishing documents change", err)
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Document, error) {
	docs, err := svc.repo.QueryDocuments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	return docs, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Document, error) {
	return svc.repo.GetDocument(ctx, id)
}

func (svc *Service) Create(ctx context.Context, nd NewDocument) (Document, error) {
	doc, err := svc.repo.CreateDocument(ctx, Document{
		Name:        nd.Name,
		Description: nd.Description,
		FileURL:     nd.FileURL,
		IsMandatory: nd.IsMandatory,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Document{}, errors.Wrap(err, "creating document")
	}
	svc.changed(ctx)
	return doc, nil
}

func (svc *Service) Update(ctx context.Context, id int, ud UpdateDocument) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if ud.Name != nil {
		doc.Name = *ud.Name
	}
	if ud.Description != nil {
		doc.Description = core.CleanString(*ud.Description)
	}
	if ud.FileURL != nil {
		doc.FileURL = *ud.FileURL
	}
	if ud.IsMandatory != nil {
		doc.IsMandatory = *ud.IsMandatory
	}

	if doc, err = svc.repo.UpdateDocument(ctx, doc); err != nil {
		return Document{}, errors.Wrap(err, "updating document")
	}
	svc.changed(ctx)
	return doc, nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	if err := svc.repo.DeleteDocument(ctx, id); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	svc.changed(ctx)
	return nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountDocuments(ctx)
}
