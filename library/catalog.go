package library

import (
	"fmt"
	"strings"
)

// NewBook carries the metadata of a title being added to the catalog.
type NewBook struct {
	ISBN      string
	Title     string
	Author    string
	Publisher string
	Year      int
	Keywords  []string
}

// AddBook registers a title with no copies.
func (s *Session) AddBook(in NewBook) (*Book, error) {
	isbn := normalizeISBN(in.ISBN)
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if isbn == "" || title == "" || author == "" {
		return nil, fmt.Errorf("%w: isbn, title and author are required", ErrInvalidInput)
	}
	if _, ok := s.bookByISBN[isbn]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateISBN, isbn)
	}

	b := &Book{
		ID:        s.nextID("BK", func(id string) bool { return s.bookByID[id] != nil }),
		ISBN:      isbn,
		Title:     title,
		Author:    author,
		Publisher: strings.TrimSpace(in.Publisher),
		Year:      in.Year,
		Keywords:  in.Keywords,
		AddedAt:   s.now(),
		Copies:    []*Copy{},
	}
	s.books = append(s.books, b)
	s.bookByID[b.ID] = b
	s.bookByISBN[b.ISBN] = b
	s.emit(Event{Actor: s.operator, Kind: EventBookAdded, BookID: b.ID, Details: b.Title})
	return b, nil
}

// AddCopy adds a physical copy to a book. An empty barcode is generated.
func (s *Session) AddCopy(bookRef, barcode string) (*Copy, error) {
	b, err := s.lookupBook(bookRef)
	if err != nil {
		return nil, err
	}
	if err := s.guard(b.ID); err != nil {
		return nil, err
	}
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		barcode = s.nextID("BC", func(id string) bool { return s.copyByBarcode[id] != nil })
	}
	if _, ok := s.copyByBarcode[barcode]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBarcode, barcode)
	}

	c := &Copy{
		ID:      s.nextID("CP", func(id string) bool { return s.copyByID[id] != nil }),
		BookID:  b.ID,
		Barcode: barcode,
		Status:  CopyAvailable,
	}
	b.Copies = append(b.Copies, c)
	s.copyByID[c.ID] = c
	s.copyByBarcode[c.Barcode] = c
	s.emit(Event{Actor: s.operator, Kind: EventCopyAdded, BookID: b.ID, CopyID: c.ID, Details: c.Barcode})

	// A new copy is as good as a returned one for whoever is waiting.
	s.offerAvailable(b)
	return c, nil
}

// WithdrawCopy takes an AVAILABLE copy out of circulation for good.
func (s *Session) WithdrawCopy(copyRef string) (*Copy, error) {
	c, err := s.lookupCopy(copyRef)
	if err != nil {
		return nil, err
	}
	if err := s.guard(c.ID, c.BookID); err != nil {
		return nil, err
	}
	if c.Status != CopyAvailable {
		return nil, fmt.Errorf("%w: %s is %s", ErrCopyNotAvailable, c.Barcode, c.Status)
	}
	c.Status = CopyWithdrawn
	s.emit(Event{Actor: s.operator, Kind: EventCopyWithdrawn, BookID: c.BookID, CopyID: c.ID, Details: c.Barcode})
	return c, nil
}

// Book resolves a book by identifier or ISBN.
func (s *Session) Book(ref string) (*Book, error) { return s.lookupBook(ref) }

// Copy resolves a copy by identifier or barcode.
func (s *Session) Copy(ref string) (*Copy, error) { return s.lookupCopy(ref) }

// Books lists the catalog in insertion order.
func (s *Session) Books() []*Book { return s.books }

// AvailableCopies returns the book's AVAILABLE copies in acquisition order.
func (s *Session) AvailableCopies(bookRef string) ([]*Copy, error) {
	b, err := s.lookupBook(bookRef)
	if err != nil {
		return nil, err
	}
	return availableCopies(b), nil
}

// SearchBooks matches q case-insensitively against title, author, publisher,
// ISBN and keywords.
func (s *Session) SearchBooks(q string) []*Book {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []*Book{}
	}
	var out []*Book
	for _, b := range s.books {
		if bookMatches(b, q) {
			out = append(out, b)
		}
	}
	return out
}

func bookMatches(b *Book, q string) bool {
	for _, field := range []string{b.Title, b.Author, b.Publisher, b.ISBN} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, kw := range b.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}

func availableCopies(b *Book) []*Copy {
	var out []*Copy
	for _, c := range b.Copies {
		if c.Status == CopyAvailable {
			out = append(out, c)
		}
	}
	return out
}

func (s *Session) lookupBook(ref string) (*Book, error) {
	ref = strings.TrimSpace(ref)
	if b, ok := s.bookByID[ref]; ok {
		return b, nil
	}
	if b, ok := s.bookByISBN[normalizeISBN(ref)]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBook, ref)
}

func (s *Session) lookupCopy(ref string) (*Copy, error) {
	ref = strings.TrimSpace(ref)
	if c, ok := s.copyByID[ref]; ok {
		return c, nil
	}
	if c, ok := s.copyByBarcode[ref]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCopy, ref)
}

// normalizeISBN drops separators so "978-0-13-110362-7" and "9780131103627"
// name the same book.
func normalizeISBN(isbn string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn)))
}
