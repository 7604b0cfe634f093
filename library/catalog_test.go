package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBook(t *testing.T) {
	s, _ := newTestSession(t)

	b, err := s.AddBook(NewBook{ISBN: "978-0-13-110362-7", Title: "The C Programming Language", Author: "Kernighan", Keywords: []string{"systems"}})
	require.NoError(t, err)
	assert.Equal(t, "BK-1", b.ID)
	assert.Equal(t, "9780131103627", b.ISBN)
	assert.Empty(t, b.Copies)

	_, err = s.AddBook(NewBook{ISBN: "9780131103627", Title: "Again", Author: "Someone"})
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	_, err = s.AddBook(NewBook{ISBN: "123", Title: " ", Author: "Nobody"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	found, err := s.Book("978 0 13 110362 7")
	require.NoError(t, err)
	assert.Same(t, b, found)
}

func TestAddCopy(t *testing.T) {
	s, _ := newTestSession(t)
	b := addBook(t, s, "Beloved", 0)

	c, err := s.AddCopy(b.ID, "BEL-1")
	require.NoError(t, err)
	assert.Equal(t, CopyAvailable, c.Status)
	assert.Equal(t, b.ID, c.BookID)

	generated, err := s.AddCopy(b.ISBN, "")
	require.NoError(t, err)
	assert.Equal(t, "BC-1", generated.Barcode)

	_, err = s.AddCopy(b.ID, "BEL-1")
	assert.ErrorIs(t, err, ErrDuplicateBarcode)
	_, err = s.AddCopy("BK-404", "")
	assert.ErrorIs(t, err, ErrUnknownBook)

	byBarcode, err := s.Copy("BEL-1")
	require.NoError(t, err)
	assert.Same(t, c, byBarcode)

	available, err := s.AvailableCopies(b.ID)
	require.NoError(t, err)
	assert.Len(t, available, 2)
	requireConsistent(t, s)
}

func TestWithdrawCopy(t *testing.T) {
	s, _ := newTestSession(t)
	b := addBook(t, s, "Emma", 2)
	u := addUser(t, s, "jane", CategoryStudent)
	loan := mustLoan(t, s, u.ID, b.ID)

	_, err := s.WithdrawCopy(loan.CopyID)
	assert.ErrorIs(t, err, ErrCopyNotAvailable)

	c, err := s.WithdrawCopy(b.Copies[1].Barcode)
	require.NoError(t, err)
	assert.Equal(t, CopyWithdrawn, c.Status)

	_, err = s.RegisterLoan(addUser(t, s, "other", CategoryStudent).ID, b.ID, "")
	assert.ErrorIs(t, err, ErrNoAvailableCopy)
	requireConsistent(t, s)
}

func TestSearchBooks(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.AddBook(NewBook{ISBN: "1", Title: "Dune", Author: "Frank Herbert", Keywords: []string{"desert"}})
	require.NoError(t, err)
	_, err = s.AddBook(NewBook{ISBN: "2", Title: "Solaris", Author: "Stanislaw Lem", Publisher: "Walker"})
	require.NoError(t, err)

	tests := []struct {
		query string
		want  []string
	}{
		{"dune", []string{"Dune"}},
		{"LEM", []string{"Solaris"}},
		{"desert", []string{"Dune"}},
		{"walker", []string{"Solaris"}},
		{"a", []string{"Dune", "Solaris"}},
		{"zzz", nil},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, b := range s.SearchBooks(tt.query) {
				got = append(got, b.Title)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
