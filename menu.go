package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"library-circulation/journal"
	"library-circulation/library"
)

// menuCommand identifies one interactive action.
type menuCommand int

const (
	cmdExit menuCommand = iota
	cmdAddBook
	cmdAddCopy
	cmdWithdrawCopy
	cmdListBooks
	cmdSearchBooks
	cmdShowBook
	cmdRegisterUser
	cmdListUsers
	cmdSetPIN
	cmdListSuspensions
	cmdBorrow
	cmdReturn
	cmdRenew
	cmdListLoans
	cmdApplyPenalty
	cmdPayPenalty
	cmdLiftSuspension
	cmdReserve
	cmdConfirmReservation
	cmdCancelReservation
	cmdListReservations
	cmdNotifyNext
	cmdProcessQueues
	cmdHistory
	cmdStatistics
	cmdIntegrity
	cmdHelp
)

type menuEntry struct {
	cmd     menuCommand
	name    string
	section string
	run     func(*shell) error
}

// menu is the single dispatch table. Order is the order shown in help.
var menu = []menuEntry{
	{cmdAddBook, "add book", "Catalog", (*shell).addBook},
	{cmdAddCopy, "add copy", "Catalog", (*shell).addCopy},
	{cmdWithdrawCopy, "withdraw copy", "Catalog", (*shell).withdrawCopy},
	{cmdListBooks, "list books", "Catalog", (*shell).listBooks},
	{cmdSearchBooks, "search books", "Catalog", (*shell).searchBooks},
	{cmdShowBook, "show book", "Catalog", (*shell).showBook},
	{cmdRegisterUser, "register user", "Members", (*shell).registerUser},
	{cmdListUsers, "list users", "Members", (*shell).listUsers},
	{cmdSetPIN, "set pin", "Members", (*shell).setPIN},
	{cmdListSuspensions, "list suspensions", "Members", (*shell).listSuspensions},
	{cmdBorrow, "borrow", "Circulation", (*shell).borrow},
	{cmdReturn, "return", "Circulation", (*shell).giveBack},
	{cmdRenew, "renew", "Circulation", (*shell).renew},
	{cmdListLoans, "list loans", "Circulation", (*shell).listLoans},
	{cmdApplyPenalty, "apply penalty", "Penalties", (*shell).applyPenalty},
	{cmdPayPenalty, "pay penalty", "Penalties", (*shell).payPenalty},
	{cmdLiftSuspension, "lift suspension", "Penalties", (*shell).liftSuspension},
	{cmdReserve, "reserve", "Reservations", (*shell).reserve},
	{cmdConfirmReservation, "confirm reservation", "Reservations", (*shell).confirmReservation},
	{cmdCancelReservation, "cancel reservation", "Reservations", (*shell).cancelReservation},
	{cmdListReservations, "list reservations", "Reservations", (*shell).listReservations},
	{cmdNotifyNext, "notify next", "Reservations", (*shell).notifyNext},
	{cmdProcessQueues, "process queues", "Reservations", (*shell).processQueues},
	{cmdHistory, "history", "System", (*shell).history},
	{cmdStatistics, "statistics", "System", (*shell).statistics},
	{cmdIntegrity, "check integrity", "System", (*shell).integrity},
	{cmdHelp, "help", "System", nil},
	{cmdExit, "exit", "System", nil},
}

// lookupCommand accepts a command number or its name.
func lookupCommand(input string) (menuEntry, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if n, err := strconv.Atoi(input); err == nil {
		for _, e := range menu {
			if int(e.cmd) == n {
				return e, true
			}
		}
		return menuEntry{}, false
	}
	for _, e := range menu {
		if e.name == input {
			return e, true
		}
	}
	return menuEntry{}, false
}

// shell runs the interactive menu against a manager.
type shell struct {
	sc      *bufio.Scanner
	out     io.Writer
	mgr     *library.LibraryManager
	journal *journal.Journal
	// readSecret reads a PIN without echo when the input is a terminal.
	readSecret func(prompt string) (string, error)
}

func (sh *shell) printf(format string, args ...any) { fmt.Fprintf(sh.out, format, args...) }

func (sh *shell) println(args ...any) { fmt.Fprintln(sh.out, args...) }

// loop reads commands until exit or end of input.
func (sh *shell) loop() {
	sh.println("Welcome to the Library Circulation System!")
	sh.help()
	for {
		sh.printf("\n> ")
		if !sh.sc.Scan() {
			return
		}
		input := strings.TrimSpace(sh.sc.Text())
		if input == "" {
			continue
		}
		entry, ok := lookupCommand(input)
		if !ok {
			sh.println("Unknown command. Type 'help' to list the available commands.")
			continue
		}
		switch entry.cmd {
		case cmdExit:
			sh.println("Goodbye!")
			return
		case cmdHelp:
			sh.help()
			continue
		}
		if err := entry.run(sh); err != nil {
			sh.report(err)
		}
	}
}

func (sh *shell) report(err error) {
	var ie *library.IntegrityError
	if errors.As(err, &ie) {
		sh.println("Data integrity error, the records involved are refused until repaired:")
		for _, v := range ie.Violations {
			sh.printf("  %s\n", v)
		}
		return
	}
	sh.printf("Error: %v\n", err)
}

// ask prompts for one line. ok is false at end of input.
func (sh *shell) ask(label string) (string, bool) {
	sh.printf("%s: ", label)
	if !sh.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sh.sc.Text()), true
}

var errAborted = errors.New("input ended")

// askAll prompts for each label in turn.
func (sh *shell) askAll(labels ...string) ([]string, error) {
	out := make([]string, len(labels))
	for i, l := range labels {
		v, ok := sh.ask(l)
		if !ok {
			return nil, errAborted
		}
		out[i] = v
	}
	return out, nil
}

// authenticate asks for the member's PIN if one is set.
func (sh *shell) authenticate(userID string) error {
	u, err := sh.mgr.User(userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return nil
	}
	pin, err := sh.readSecret(fmt.Sprintf("PIN for %s: ", u.Name))
	if err != nil {
		return fmt.Errorf("read PIN: %w", err)
	}
	return sh.mgr.Authenticate(userID, pin)
}

func (sh *shell) help() {
	section := ""
	for _, e := range menu {
		if e.section != section {
			section = e.section
			sh.printf("\n%s\n", section)
		}
		sh.printf("  %2d  %s\n", e.cmd, e.name)
	}
}

// ------------------ Catalog ------------------

func (sh *shell) addBook() error {
	in, err := sh.askAll("ISBN", "Title", "Author", "Publisher", "Year", "Keywords (comma separated)")
	if err != nil {
		return err
	}
	year := 0
	if in[4] != "" {
		if year, err = strconv.Atoi(in[4]); err != nil {
			return fmt.Errorf("invalid year %q", in[4])
		}
	}
	var keywords []string
	for _, kw := range strings.Split(in[5], ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	b, err := sh.mgr.AddBook(library.NewBook{
		ISBN: in[0], Title: in[1], Author: in[2], Publisher: in[3], Year: year, Keywords: keywords,
	})
	if err != nil {
		return err
	}
	sh.printf("Added book %s. Use 'add copy' to put copies on the shelf.\n", b.ID)
	return nil
}

func (sh *shell) addCopy() error {
	in, err := sh.askAll("Book ID or ISBN", "Barcode (empty to generate)")
	if err != nil {
		return err
	}
	c, err := sh.mgr.AddCopy(in[0], in[1])
	if err != nil {
		return err
	}
	sh.printf("Added copy %s with barcode %s (%s).\n", c.ID, c.Barcode, c.Status)
	return nil
}

func (sh *shell) withdrawCopy() error {
	in, err := sh.askAll("Copy ID or barcode")
	if err != nil {
		return err
	}
	c, err := sh.mgr.WithdrawCopy(in[0])
	if err != nil {
		return err
	}
	sh.printf("Copy %s withdrawn.\n", c.Barcode)
	return nil
}

func (sh *shell) listBooks() error {
	sh.printBooks(sh.mgr.Books())
	return nil
}

func (sh *shell) printBooks(books []*library.Book) {
	if len(books) == 0 {
		sh.println("No books found.")
		return
	}
	sh.printf("%-12s %-15s %-30s %-22s %s\n", "ID", "ISBN", "Title", "Author", "Available")
	for _, b := range books {
		sh.println(library.PrettyBook(b))
	}
}

func (sh *shell) searchBooks() error {
	in, err := sh.askAll("Search")
	if err != nil {
		return err
	}
	books := sh.mgr.SearchBooks(in[0])
	sh.printf("Found %d book(s) matching '%s':\n", len(books), in[0])
	sh.printBooks(books)
	return nil
}

func (sh *shell) showBook() error {
	in, err := sh.askAll("Book ID or ISBN")
	if err != nil {
		return err
	}
	queue, err := sh.mgr.Queue(in[0])
	if err != nil {
		return err
	}
	b, err := sh.mgr.Book(in[0])
	if err != nil {
		return err
	}
	sh.printf("%s  %q by %s (%s %d), ISBN %s, lent %d times\n",
		b.ID, b.Title, b.Author, b.Publisher, b.Year, b.ISBN, b.LoanCount)
	if len(b.Keywords) > 0 {
		sh.printf("Keywords: %s\n", strings.Join(b.Keywords, ", "))
	}
	sh.println("Copies:")
	for _, c := range b.Copies {
		sh.printf("  %-12s %-14s %s\n", c.ID, c.Barcode, c.Status)
	}
	sh.printf("Queue (%d):\n", len(queue))
	for _, r := range queue {
		sh.printf("  %s\n", library.PrettyReservation(r))
	}
	return nil
}

// ------------------ Members ------------------

func (sh *shell) registerUser() error {
	in, err := sh.askAll("Name", "Email", "Category (student/teacher/staff)")
	if err != nil {
		return err
	}
	pin, err := sh.readSecret("PIN (optional): ")
	if err != nil {
		return fmt.Errorf("read PIN: %w", err)
	}
	u, err := sh.mgr.RegisterUser(library.NewUser{
		Name: in[0], Email: in[1], Category: library.Category(strings.ToLower(in[2])), Password: pin,
	})
	if err != nil {
		return err
	}
	sh.printf("Registered %s with matricule %s.\n", u.Name, u.ID)
	return nil
}

func (sh *shell) listUsers() error {
	sh.printUsers(sh.mgr.Users())
	return nil
}

func (sh *shell) printUsers(users []*library.User) {
	if len(users) == 0 {
		sh.println("No members found.")
		return
	}
	for _, u := range users {
		sh.println(library.PrettyUser(u))
	}
}

func (sh *shell) setPIN() error {
	in, err := sh.askAll("Matricule")
	if err != nil {
		return err
	}
	u, err := sh.mgr.User(in[0])
	if err != nil {
		return err
	}
	pin, err := sh.readSecret(fmt.Sprintf("New PIN for %s (empty removes it): ", u.Name))
	if err != nil {
		return fmt.Errorf("read PIN: %w", err)
	}
	if err := sh.mgr.SetPassword(u.ID, pin); err != nil {
		return err
	}
	sh.printf("PIN updated for %s.\n", u.Name)
	return nil
}

func (sh *shell) listSuspensions() error {
	sh.printUsers(sh.mgr.Suspensions())
	return nil
}

// ------------------ Circulation ------------------

func (sh *shell) borrow() error {
	in, err := sh.askAll("Matricule", "Book ID or ISBN", "Barcode (empty for any copy)")
	if err != nil {
		return err
	}
	if err := sh.authenticate(in[0]); err != nil {
		return err
	}
	l, err := sh.mgr.RegisterLoan(in[0], in[1], in[2])
	if err != nil {
		return err
	}
	c, _ := sh.mgr.Copy(l.CopyID)
	barcode := l.CopyID
	if c != nil {
		barcode = c.Barcode
	}
	sh.printf("Loan %s: copy %s due %s.\n", l.ID, barcode, l.DueAt.Format("2006-01-02"))
	return nil
}

func (sh *shell) giveBack() error {
	in, err := sh.askAll("Loan ID or copy barcode")
	if err != nil {
		return err
	}
	var res *library.ReturnResult
	if _, lerr := sh.mgr.Loan(in[0]); lerr == nil {
		res, err = sh.mgr.ReturnLoan(in[0])
	} else {
		res, err = sh.mgr.ReturnCopy(in[0])
	}
	if err != nil {
		return err
	}
	sh.printf("Loan %s closed.\n", res.Loan.ID)
	if res.OverdueDays > 0 {
		sh.printf("%d day(s) late, penalty %s.\n", res.OverdueDays, res.Penalty.StringFixed(2))
	}
	if res.Suspended {
		sh.println("The member is now suspended.")
	}
	if r := res.Notified; r != nil {
		sh.printf("Copy held for reservation %s (%s) until %s.\n", r.ID, r.UserID, r.ClaimDeadline.Format("2006-01-02 15:04"))
	}
	return nil
}

func (sh *shell) renew() error {
	in, err := sh.askAll("Loan ID")
	if err != nil {
		return err
	}
	l, err := sh.mgr.Loan(in[0])
	if err != nil {
		return err
	}
	if err := sh.authenticate(l.UserID); err != nil {
		return err
	}
	if l, err = sh.mgr.RenewLoan(l.ID); err != nil {
		return err
	}
	sh.printf("Loan %s renewed, now due %s (%d renewal(s) used).\n", l.ID, l.DueAt.Format("2006-01-02"), l.Renewals)
	return nil
}

func (sh *shell) listLoans() error {
	in, err := sh.askAll("Show [open/overdue/all] or a matricule")
	if err != nil {
		return err
	}
	var loans []*library.Loan
	switch strings.ToLower(in[0]) {
	case "", "open":
		loans = sh.mgr.OpenLoans()
	case "overdue":
		loans = sh.mgr.OverdueLoans()
	case "all":
		loans = sh.mgr.Loans()
	default:
		if loans, err = sh.mgr.LoansByUser(in[0]); err != nil {
			return err
		}
	}
	if len(loans) == 0 {
		sh.println("No loans.")
		return nil
	}
	for _, l := range loans {
		sh.println(library.PrettyLoan(l))
	}
	return nil
}

// ------------------ Penalties ------------------

func (sh *shell) applyPenalty() error {
	in, err := sh.askAll("Matricule", "Amount (negative to credit)", "Reason")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(in[1])
	if err != nil {
		return fmt.Errorf("invalid amount %q", in[1])
	}
	u, err := sh.mgr.ApplyPenalty(in[0], amount, in[2])
	if err != nil {
		return err
	}
	sh.println(library.PrettyUser(u))
	return nil
}

func (sh *shell) payPenalty() error {
	in, err := sh.askAll("Matricule", "Amount paid")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(in[1])
	if err != nil {
		return fmt.Errorf("invalid amount %q", in[1])
	}
	u, err := sh.mgr.PayPenalty(in[0], amount)
	if err != nil {
		return err
	}
	sh.println(library.PrettyUser(u))
	return nil
}

func (sh *shell) liftSuspension() error {
	in, err := sh.askAll("Matricule")
	if err != nil {
		return err
	}
	u, err := sh.mgr.LiftSuspension(in[0])
	if err != nil {
		return err
	}
	sh.println(library.PrettyUser(u))
	return nil
}

// ------------------ Reservations ------------------

func (sh *shell) reserve() error {
	in, err := sh.askAll("Matricule", "Book ID or ISBN")
	if err != nil {
		return err
	}
	if err := sh.authenticate(in[0]); err != nil {
		return err
	}
	r, err := sh.mgr.CreateReservation(in[0], in[1])
	if err != nil {
		return err
	}
	sh.printf("Reservation %s, position %d in the queue.\n", r.ID, r.Position)
	return nil
}

func (sh *shell) confirmReservation() error {
	in, err := sh.askAll("Reservation ID")
	if err != nil {
		return err
	}
	r, err := sh.mgr.Reservation(in[0])
	if err != nil {
		return err
	}
	if err := sh.authenticate(r.UserID); err != nil {
		return err
	}
	l, err := sh.mgr.ConfirmReservation(r.ID)
	if err != nil {
		return err
	}
	sh.printf("Reservation confirmed: loan %s due %s.\n", l.ID, l.DueAt.Format("2006-01-02"))
	return nil
}

func (sh *shell) cancelReservation() error {
	in, err := sh.askAll("Reservation ID")
	if err != nil {
		return err
	}
	r, err := sh.mgr.Reservation(in[0])
	if err != nil {
		return err
	}
	if err := sh.authenticate(r.UserID); err != nil {
		return err
	}
	if r, err = sh.mgr.CancelReservation(r.ID); err != nil {
		return err
	}
	sh.printf("Reservation %s cancelled.\n", r.ID)
	return nil
}

func (sh *shell) listReservations() error {
	in, err := sh.askAll("Book ID/ISBN or matricule (empty for all)")
	if err != nil {
		return err
	}
	var list []*library.Reservation
	switch {
	case in[0] == "":
		list = sh.mgr.Reservations()
	default:
		if list, err = sh.mgr.Queue(in[0]); err != nil {
			if list, err = sh.mgr.ReservationsByUser(in[0]); err != nil {
				return fmt.Errorf("%q is neither a book nor a member", in[0])
			}
		}
	}
	if len(list) == 0 {
		sh.println("No reservations.")
		return nil
	}
	for _, r := range list {
		sh.println(library.PrettyReservation(r))
	}
	return nil
}

func (sh *shell) notifyNext() error {
	in, err := sh.askAll("Book ID or ISBN", "Copy ID or barcode")
	if err != nil {
		return err
	}
	r, err := sh.mgr.NotifyNext(in[0], in[1])
	if err != nil {
		return err
	}
	if r == nil {
		sh.println("Nobody to notify; the copy stays available.")
		return nil
	}
	sh.printf("Notified %s for reservation %s.\n", r.UserID, r.ID)
	return nil
}

func (sh *shell) processQueues() error {
	expired, suspended := sh.mgr.ProcessQueues()
	sh.printf("%d reservation(s) expired.\n", len(expired))
	for _, r := range expired {
		sh.println(library.PrettyReservation(r))
	}
	sh.printf("%d member(s) suspended for overdue loans.\n", len(suspended))
	for _, u := range suspended {
		sh.println(library.PrettyUser(u))
	}
	return nil
}

// ------------------ System ------------------

func (sh *shell) history() error {
	if sh.journal == nil {
		sh.println("The journal is not available.")
		return nil
	}
	in, err := sh.askAll("Matricule (empty for the latest entries)")
	if err != nil {
		return err
	}
	var entries []journal.Entry
	if in[0] == "" {
		entries, err = sh.journal.Recent(context.Background(), 20)
	} else {
		entries, err = sh.journal.ForUser(context.Background(), in[0])
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(entries) == 0 {
		sh.println("No journal entries.")
		return nil
	}
	for _, e := range entries {
		sh.println(e)
	}
	return nil
}

func (sh *shell) statistics() error {
	sh.printf("%s", sh.mgr.Report())
	return nil
}

func (sh *shell) integrity() error {
	vs := sh.mgr.Violations()
	if len(vs) == 0 {
		sh.println("No integrity violations.")
		return nil
	}
	sh.printf("%d integrity violation(s):\n", len(vs))
	for _, v := range vs {
		sh.printf("  %s\n", v)
	}
	return nil
}
