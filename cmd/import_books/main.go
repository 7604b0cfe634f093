package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"library-circulation/journal"
	"library-circulation/library"
)

// seedFile is the layout of the YAML seed.
type seedFile struct {
	Books []struct {
		ISBN      string   `yaml:"isbn"`
		Title     string   `yaml:"title"`
		Author    string   `yaml:"author"`
		Publisher string   `yaml:"publisher"`
		Year      int      `yaml:"year"`
		Keywords  []string `yaml:"keywords"`
		Copies    int      `yaml:"copies"`
		Barcodes  []string `yaml:"barcodes"`
	} `yaml:"books"`
	Users []struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Category string `yaml:"category"`
		PIN      string `yaml:"pin"`
	} `yaml:"users"`
}

type importOptions struct {
	seedPath string
	dataDir  string
	reset    bool
}

func main() {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:          "import_books",
		Short:        "Populate a data directory from a YAML seed file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts)
		},
	}
	cmd.Flags().StringVar(&opts.seedPath, "seed", "cmd/import_books/seed.yaml", "YAML file listing books and members")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "data", "data directory to populate")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "remove existing data files first")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(opts *importOptions) error {
	raw, err := os.ReadFile(filepath.Clean(opts.seedPath))
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	if opts.reset {
		fmt.Println("Cleaning up existing data files...")
		for _, name := range []string{
			library.BooksFile, library.UsersFile, library.LoansFile, library.ReservationsFile,
			library.NotificationsFile, library.JournalFile, library.JournalFile + "-shm", library.JournalFile + "-wal",
		} {
			if err := os.Remove(filepath.Join(opts.dataDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("Warning: Could not remove %s: %v\n", name, err)
			}
		}
	}

	j, err := journal.Open(filepath.Join(opts.dataDir, library.JournalFile))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	manager, err := library.NewLibraryManager(opts.dataDir, library.WithJournal(j))
	if err != nil {
		return err
	}

	successCount, errorCount := 0, 0
	for _, sb := range seed.Books {
		fmt.Printf("Importing: %s by %s... ", sb.Title, sb.Author)
		b, err := manager.AddBook(library.NewBook{
			ISBN: sb.ISBN, Title: sb.Title, Author: sb.Author,
			Publisher: sb.Publisher, Year: sb.Year, Keywords: sb.Keywords,
		})
		if err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		barcodes := sb.Barcodes
		for len(barcodes) < sb.Copies {
			barcodes = append(barcodes, "")
		}
		for _, bc := range barcodes {
			if _, err := manager.AddCopy(b.ID, bc); err != nil {
				fmt.Printf("copy error: %v ", err)
			}
		}
		fmt.Printf("SUCCESS (ID: %s, %d copies)\n", b.ID, len(b.Copies))
		successCount++
	}

	for _, su := range seed.Users {
		u, err := manager.RegisterUser(library.NewUser{
			Name: su.Name, Email: su.Email, Category: library.Category(su.Category), Password: su.PIN,
		})
		if err != nil {
			fmt.Printf("Member %s: ERROR - %v\n", su.Name, err)
			errorCount++
			continue
		}
		fmt.Printf("Member %s registered as %s\n", u.Name, u.ID)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d records\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	books := manager.Books()
	if len(books) > 0 {
		fmt.Printf("\n%-12s %-50s %-30s\n", "ID", "Title", "Author")
		fmt.Println(strings.Repeat("-", 94))
		for _, book := range books {
			fmt.Printf("%-12s %-50s %-30s\n", book.ID, truncateString(book.Title, 50), truncateString(book.Author, 30))
		}
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
