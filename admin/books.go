package admin

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/jrsteele09/librahub-admin/apiclient"
	"github.com/jrsteele09/librahub-admin/internal/validation"
)

const (
	PathBooks = "/books"

	DefaultBooksPageSize = 20
)

const (
	LoadBooksFailedMsg     = "Failed to load books. Please try again."
	LoadBookFailedMsg      = "Failed to load book. Please try again."
	CreateBookFailedMsg    = "Failed to create book. Please try again."
	UpdateBookFailedMsg    = "Failed to update book. Please try again."
	RemoveBookFailedMsg    = "Failed to remove book. Please try again."
	SetPricingFailedMsg    = "Failed to set pricing. Please try again."
	PublishBookFailedMsg   = "Failed to publish book. Please try again."
	UnlistBookFailedMsg    = "Failed to unlist book. Please try again."
	UploadCoverFailedMsg   = "Failed to upload cover image."
	UploadEditionFailedMsg = "Failed to upload edition."
)

type BookStatus string

const (
	BookDraft     BookStatus = "Draft"
	BookPublished BookStatus = "Published"
	BookUnlisted  BookStatus = "Unlisted"
	BookRemoved   BookStatus = "Removed"
)

// Edition formats accepted by UploadEdition.
const (
	FormatPDF  = "PDF"
	FormatEPUB = "EPUB"
)

type Pricing struct {
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	VatRate        *float64 `json:"vatRate,omitempty"`
	PromoPrice     *float64 `json:"promoPrice,omitempty"`
	PromoStartDate *string  `json:"promoStartDate,omitempty"`
	PromoEndDate   *string  `json:"promoEndDate,omitempty"`
}

type BookDetails struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Language        *string    `json:"language,omitempty"`
	Publisher       *string    `json:"publisher,omitempty"`
	PublicationDate *string    `json:"publicationDate,omitempty"`
	ISBN            *string    `json:"isbn,omitempty"`
	Status          BookStatus `json:"status"`
	Authors         []string   `json:"authors"`
	Categories      []string   `json:"categories"`
	Tags            []string   `json:"tags"`
	Pricing         *Pricing   `json:"pricing,omitempty"`
	CoverURL        *string    `json:"coverUrl,omitempty"`
}

type BooksList struct {
	Books      []BookDetails `json:"books"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

// BookQuery selects a page of the catalog. Page is 1-based.
type BookQuery struct {
	SearchTerm string
	Page       int
	PageSize   int
}

type CreateBookRequest struct {
	Title           string   `json:"title" validate:"required,nonblank"`
	Description     string   `json:"description" validate:"required"`
	Language        string   `json:"language" validate:"required"`
	Publisher       string   `json:"publisher" validate:"required"`
	PublicationDate string   `json:"publicationDate" validate:"required"`
	ISBN            string   `json:"isbn" validate:"required"`
	Authors         []string `json:"authors" validate:"min=1,nonblank"`
	Categories      []string `json:"categories" validate:"min=1,nonblank"`
	Tags            []string `json:"tags,omitempty"`
}

// UpdateBookRequest changes only the fields that are set.
type UpdateBookRequest struct {
	Description     *string  `json:"description,omitempty"`
	Language        *string  `json:"language,omitempty"`
	Publisher       *string  `json:"publisher,omitempty"`
	PublicationDate *string  `json:"publicationDate,omitempty"`
	ISBN            *string  `json:"isbn,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

type RemoveBookRequest struct {
	Reason string `json:"reason" validate:"required,nonblank"`
}

type SetPricingRequest struct {
	Price          float64  `json:"price" validate:"gte=0"`
	Currency       string   `json:"currency" validate:"required"`
	VatRate        *float64 `json:"vatRate,omitempty" validate:"omitempty,gte=0,lte=1"`
	PromoPrice     *float64 `json:"promoPrice,omitempty" validate:"omitempty,gte=0"`
	PromoStartDate *string  `json:"promoStartDate,omitempty"`
	PromoEndDate   *string  `json:"promoEndDate,omitempty"`
}

func (r SetPricingRequest) validate() error {
	if err := validator.Validate(r); err != nil {
		return err
	}
	// A zero promo price means no promotion.
	if r.PromoPrice != nil && *r.PromoPrice > 0 && *r.PromoPrice >= r.Price {
		return validation.Invalid("promoPrice must be less than regular price")
	}
	return nil
}

func (s *Service) ListBooks(ctx context.Context, query BookQuery) (*BooksList, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = DefaultBooksPageSize
	}
	q := url.Values{}
	if query.SearchTerm != "" {
		q.Set("searchTerm", query.SearchTerm)
	}
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("pageSize", strconv.Itoa(query.PageSize))

	var out BooksList
	if err := s.client.Get(ctx, PathBooks, &out, apiclient.WithQuery(q)); err != nil {
		return nil, fail("ListBooks", err, LoadBooksFailedMsg)
	}
	return &out, nil
}

func (s *Service) GetBook(ctx context.Context, bookID string) (*BookDetails, error) {
	var out BookDetails
	if err := s.client.Get(ctx, bookPath(bookID), &out); err != nil {
		return nil, fail("GetBook", err, LoadBookFailedMsg)
	}
	return &out, nil
}

// CreateBook adds a draft to the catalog and returns its id.
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (string, error) {
	if err := validator.Validate(req); err != nil {
		return "", fail("CreateBook", err, CreateBookFailedMsg)
	}
	var out ValueResponse
	if err := s.client.Post(ctx, PathBooks, req, &out); err != nil {
		return "", fail("CreateBook", err, CreateBookFailedMsg)
	}
	return out.Value, nil
}

func (s *Service) UpdateBook(ctx context.Context, bookID string, req UpdateBookRequest) (*BookDetails, error) {
	var out BookDetails
	if err := s.client.Put(ctx, bookPath(bookID), req, &out); err != nil {
		return nil, fail("UpdateBook", err, UpdateBookFailedMsg)
	}
	return &out, nil
}

func (s *Service) RemoveBook(ctx context.Context, bookID, reason string) error {
	req := RemoveBookRequest{Reason: reason}
	if err := validator.Validate(req); err != nil {
		return fail("RemoveBook", err, RemoveBookFailedMsg)
	}
	if err := s.client.Post(ctx, bookPath(bookID, "remove"), req, nil); err != nil {
		return fail("RemoveBook", err, RemoveBookFailedMsg)
	}
	return nil
}

// SetPricing applies req and returns the book as it now stands.
func (s *Service) SetPricing(ctx context.Context, bookID string, req SetPricingRequest) (*BookDetails, error) {
	if err := req.validate(); err != nil {
		return nil, fail("SetPricing", err, SetPricingFailedMsg)
	}
	if err := s.client.Post(ctx, bookPath(bookID, "pricing"), req, nil); err != nil {
		return nil, fail("SetPricing", err, SetPricingFailedMsg)
	}
	return s.reload(ctx, "SetPricing", bookID, SetPricingFailedMsg)
}

func (s *Service) PublishBook(ctx context.Context, bookID string) (*BookDetails, error) {
	if err := s.client.Post(ctx, bookPath(bookID, "publish"), nil, nil); err != nil {
		return nil, fail("PublishBook", err, PublishBookFailedMsg)
	}
	return s.reload(ctx, "PublishBook", bookID, PublishBookFailedMsg)
}

func (s *Service) UnlistBook(ctx context.Context, bookID string) (*BookDetails, error) {
	if err := s.client.Post(ctx, bookPath(bookID, "unlist"), nil, nil); err != nil {
		return nil, fail("UnlistBook", err, UnlistBookFailedMsg)
	}
	return s.reload(ctx, "UnlistBook", bookID, UnlistBookFailedMsg)
}

func (s *Service) UploadCover(ctx context.Context, bookID, filename string, image io.Reader) (string, error) {
	var out ValueResponse
	err := s.client.PostMultipart(ctx, bookPath(bookID, "cover"), nil,
		apiclient.FormFile{Field: "file", Name: filename, Contents: image}, &out)
	if err != nil {
		return "", fail("UploadCover", err, UploadCoverFailedMsg)
	}
	return out.Value, nil
}

// UploadEdition uploads a readable edition of the book in format. version is
// optional.
func (s *Service) UploadEdition(ctx context.Context, bookID, filename string, contents io.Reader, format string, version *int) (string, error) {
	if format == "" {
		return "", fail("UploadEdition", validation.Invalid("format is required"), UploadEditionFailedMsg)
	}
	fields := map[string]string{"format": format}
	if version != nil {
		fields["version"] = strconv.Itoa(*version)
	}
	var out ValueResponse
	err := s.client.PostMultipart(ctx, bookPath(bookID, "editions"), fields,
		apiclient.FormFile{Field: "file", Name: filename, Contents: contents}, &out)
	if err != nil {
		return "", fail("UploadEdition", err, UploadEditionFailedMsg)
	}
	return out.Value, nil
}

func (s *Service) reload(ctx context.Context, op, bookID, fallback string) (*BookDetails, error) {
	var out BookDetails
	if err := s.client.Get(ctx, bookPath(bookID), &out); err != nil {
		return nil, fail(op, err, fallback)
	}
	return &out, nil
}

func bookPath(bookID string, parts ...string) string {
	p := fmt.Sprintf("%s/%s", PathBooks, escape(bookID))
	for _, part := range parts {
		p += "/" + escape(part)
	}
	return p
}
