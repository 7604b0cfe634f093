package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collection file names inside the data directory.
const (
	BooksFile         = "books.json"
	UsersFile         = "users.json"
	LoansFile         = "loans.json"
	ReservationsFile  = "reservations.json"
	NotificationsFile = "notifications.txt"
	JournalFile       = "journal.db"
)

// Store persists LibraryData as one JSON document per collection.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. Nothing is touched until Load or Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir is the data directory.
func (st *Store) Dir() string { return st.dir }

// Path joins name onto the data directory.
func (st *Store) Path(name string) string { return filepath.Join(st.dir, name) }

type booksDoc struct {
	Books []*Book `json:"books"`
}

type usersDoc struct {
	Users []*User `json:"users"`
}

type loansDoc struct {
	Loans []*Loan `json:"loans"`
}

type reservationsDoc struct {
	Reservations []*Reservation `json:"reservations"`
}

// Load reads every collection. Missing files count as empty collections so a
// fresh directory starts an empty library.
func (st *Store) Load() (LibraryData, error) {
	var (
		books booksDoc
		users usersDoc
		loans loansDoc
		res   reservationsDoc
	)
	for name, doc := range map[string]any{
		BooksFile:        &books,
		UsersFile:        &users,
		LoansFile:        &loans,
		ReservationsFile: &res,
	} {
		if err := st.read(name, doc); err != nil {
			return LibraryData{}, err
		}
	}

	data := LibraryData{
		Books:        books.Books,
		Users:        users.Users,
		Loans:        loans.Loans,
		Reservations: res.Reservations,
	}
	if data.Books == nil {
		data.Books = []*Book{}
	}
	if data.Users == nil {
		data.Users = []*User{}
	}
	if data.Loans == nil {
		data.Loans = []*Loan{}
	}
	if data.Reservations == nil {
		data.Reservations = []*Reservation{}
	}
	for _, b := range data.Books {
		if b.Copies == nil {
			b.Copies = []*Copy{}
		}
	}
	return data, nil
}

func (st *Store) read(name string, doc any) error {
	raw, err := os.ReadFile(st.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Save rewrites the whole snapshot. Every collection is written to a
// temporary file first; the renames only start once all writes succeeded.
func (st *Store) Save(data LibraryData) error {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	docs := []struct {
		name string
		doc  any
	}{
		{BooksFile, booksDoc{Books: data.Books}},
		{UsersFile, usersDoc{Users: data.Users}},
		{LoansFile, loansDoc{Loans: data.Loans}},
		{ReservationsFile, reservationsDoc{Reservations: data.Reservations}},
	}

	temps := make([]string, 0, len(docs))
	cleanup := func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}
	for _, d := range docs {
		tmp, err := st.writeTemp(d.name, d.doc)
		if err != nil {
			cleanup()
			return err
		}
		temps = append(temps, tmp)
	}
	for i, d := range docs {
		if err := os.Rename(temps[i], st.Path(d.name)); err != nil {
			cleanup()
			return fmt.Errorf("replace %s: %w", d.name, err)
		}
	}
	return nil
}

func (st *Store) writeTemp(name string, doc any) (string, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	f, err := os.CreateTemp(st.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", name, err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return f.Name(), nil
}
