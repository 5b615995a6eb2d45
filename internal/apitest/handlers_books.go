package apitest

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/librahub-admin/admin"
)

// AddBook seeds a catalog entry and returns its id.
func (s *Server) AddBook(book admin.BookDetails) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.Status == "" {
		book.Status = admin.BookDraft
	}
	s.books[book.ID] = &book
	return book.ID
}

// Book returns a copy of a stored book.
func (s *Server) Book(id string) (admin.BookDetails, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return admin.BookDetails{}, false
	}
	return *b, true
}

func (s *Server) ListBooksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		pageSize, err := strconv.Atoi(q.Get("pageSize"))
		if err != nil || pageSize < 1 {
			pageSize = admin.DefaultBooksPageSize
		}
		term := strings.ToLower(q.Get("searchTerm"))

		s.mu.Lock()
		matched := make([]admin.BookDetails, 0, len(s.books))
		for _, b := range s.books {
			if b.Status == admin.BookRemoved {
				continue
			}
			if term != "" && !strings.Contains(strings.ToLower(b.Title), term) {
				continue
			}
			matched = append(matched, *b)
		}
		s.mu.Unlock()
		sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

		start := min((page-1)*pageSize, len(matched))
		end := min(start+pageSize, len(matched))
		writeJSON(w, http.StatusOK, admin.BooksList{
			Books:      matched[start:end],
			TotalCount: len(matched),
			Page:       page,
			PageSize:   pageSize,
			TotalPages: (len(matched) + pageSize - 1) / pageSize,
		})
	}
}

func (s *Server) GetBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := s.Book(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) CreateBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.CreateBookRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusBadRequest, "Title is required")
			return
		}
		if req.ISBN != "" && s.isbnTaken(req.ISBN) {
			writeError(w, http.StatusConflict, "A book with this ISBN already exists")
			return
		}
		id := s.AddBook(admin.BookDetails{
			Title:           req.Title,
			Description:     optional(req.Description),
			Language:        optional(req.Language),
			Publisher:       optional(req.Publisher),
			PublicationDate: optional(req.PublicationDate),
			ISBN:            optional(req.ISBN),
			Status:          admin.BookDraft,
			Authors:         slices.Clone(req.Authors),
			Categories:      slices.Clone(req.Categories),
			Tags:            slices.Clone(req.Tags),
		})
		writeJSON(w, http.StatusCreated, admin.ValueResponse{Value: id})
	}
}

func (s *Server) UpdateBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.UpdateBookRequest
		if !decode(w, r, &req) {
			return
		}
		b, err := s.updateBook(r.PathValue("id"), func(b *admin.BookDetails) error {
			setIfPresent(&b.Description, req.Description)
			setIfPresent(&b.Language, req.Language)
			setIfPresent(&b.Publisher, req.Publisher)
			setIfPresent(&b.PublicationDate, req.PublicationDate)
			setIfPresent(&b.ISBN, req.ISBN)
			if req.Authors != nil {
				b.Authors = slices.Clone(req.Authors)
			}
			if req.Categories != nil {
				b.Categories = slices.Clone(req.Categories)
			}
			if req.Tags != nil {
				b.Tags = slices.Clone(req.Tags)
			}
			return nil
		})
		if err != nil {
			writeBookError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) RemoveBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.RemoveBookRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Reason == "" {
			writeError(w, http.StatusBadRequest, "A reason is required")
			return
		}
		_, err := s.updateBook(r.PathValue("id"), func(b *admin.BookDetails) error {
			b.Status = admin.BookRemoved
			return nil
		})
		writeBookResult(w, err)
	}
}

func (s *Server) SetPricingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.SetPricingRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Price < 0 || req.Currency == "" {
			writeError(w, http.StatusBadRequest, "A non-negative price and a currency are required")
			return
		}
		_, err := s.updateBook(r.PathValue("id"), func(b *admin.BookDetails) error {
			b.Pricing = &admin.Pricing{
				Price:          req.Price,
				Currency:       req.Currency,
				VatRate:        req.VatRate,
				PromoPrice:     req.PromoPrice,
				PromoStartDate: req.PromoStartDate,
				PromoEndDate:   req.PromoEndDate,
			}
			return nil
		})
		writeBookResult(w, err)
	}
}

func (s *Server) PublishBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.updateBook(r.PathValue("id"), func(b *admin.BookDetails) error {
			if b.Pricing == nil {
				return bookConflict("Book must be priced before publishing")
			}
			if b.Status == admin.BookPublished {
				return bookConflict("Book is already published")
			}
			b.Status = admin.BookPublished
			return nil
		})
		writeBookResult(w, err)
	}
}

func (s *Server) UnlistBookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.updateBook(r.PathValue("id"), func(b *admin.BookDetails) error {
			if b.Status != admin.BookPublished {
				return bookConflict("Only published books can be unlisted")
			}
			b.Status = admin.BookUnlisted
			return nil
		})
		writeBookResult(w, err)
	}
}

func (s *Server) UploadCoverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, ok := uploadedFile(w, r)
		if !ok {
			return
		}
		id := r.PathValue("id")
		cover := fmt.Sprintf("/media/covers/%s/%s", id, filename)
		_, err := s.updateBook(id, func(b *admin.BookDetails) error {
			b.CoverURL = &cover
			return nil
		})
		if err != nil {
			writeBookError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, admin.ValueResponse{Value: cover})
	}
}

func (s *Server) UploadEditionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := uploadedFile(w, r); !ok {
			return
		}
		format := r.FormValue("format")
		if format != admin.FormatPDF && format != admin.FormatEPUB {
			writeError(w, http.StatusBadRequest, "format must be PDF or EPUB")
			return
		}
		if v := r.FormValue("version"); v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "version must be a number")
				return
			}
		}
		if _, ok := s.Book(r.PathValue("id")); !ok {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		writeJSON(w, http.StatusCreated, admin.ValueResponse{Value: uuid.NewString()})
	}
}

var errBookNotFound = errors.New("book not found")

// bookConflict is a rule violation reported to the client as a 409.
type bookConflict string

func (e bookConflict) Error() string {
	return string(e)
}

func (s *Server) updateBook(id string, fn func(b *admin.BookDetails) error) (admin.BookDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok || b.Status == admin.BookRemoved {
		return admin.BookDetails{}, errBookNotFound
	}
	if err := fn(b); err != nil {
		return admin.BookDetails{}, err
	}
	return *b, nil
}

func (s *Server) isbnTaken(isbn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ISBN != nil && *b.ISBN == isbn {
			return true
		}
	}
	return false
}

func writeBookResult(w http.ResponseWriter, err error) {
	if err != nil {
		writeBookError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeBookError(w http.ResponseWriter, err error) {
	if err == errBookNotFound {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	writeError(w, http.StatusConflict, err.Error())
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func setIfPresent(dst **string, v *string) {
	if v != nil {
		c := *v
		*dst = &c
	}
}
