package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"portal-admin/internal/apiclient"
	"portal-admin/internal/gate"
	"portal-admin/internal/registration"
)

const shellHelp = `commands:
  login USER                 sign in, the password is read on the next line
  login-token TOKEN          sign in with an existing token
  logout                     end the session
  status                     session and lockout state
  list                       reload the current page
  filter KEY=VALUE...        search=, allergies=, ticket=, checked=, sort=, limit=
  page N | next | prev       move between pages
  select ID... | select-all | toggle-all | clear | selected
  send ID                    send one ticket
  send-selected              send tickets to the selection
  checkin ID                 toggle check-in
  verify PAYLOAD             check a scanned check-in payload
  export TARGET              save the CSV export
  analytics                  registration counts
  quit`

type shell struct {
	c       *console
	guard   *gate.Guard
	scanner *bufio.Scanner
}

func cmdShell(ctx context.Context, c *console, _ []string) error {
	s := &shell{c: c, scanner: bufio.NewScanner(c.stdin)}
	c.rt.Gate.OnLogout(c.rt.Selection.Clear)
	defer s.stopGuard()

	if c.rt.Session.IsValid() {
		s.startGuard(ctx)
	}

	scanner := s.scanner
	for {
		fmt.Fprint(c.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.stdout)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}

		if err := s.dispatch(ctx, fields[0], fields[1:]); err != nil {
			s.c.report(err)
		}
	}
}

// readPassword takes the next input line as the password so it is never part
// of a command line.
func (s *shell) readPassword() (string, error) {
	fmt.Fprint(s.c.stdout, "password: ")
	if !s.scanner.Scan() {
		fmt.Fprintln(s.c.stdout)
		if err := s.scanner.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", fmt.Errorf("read password: %w", io.ErrUnexpectedEOF)
	}
	fmt.Fprintln(s.c.stdout)
	return strings.TrimRight(s.scanner.Text(), "\r\n"), nil
}

func (s *shell) startGuard(ctx context.Context) {
	s.stopGuard()
	s.guard = s.c.rt.Gate.Guard(ctx)
	if !s.guard.Authorized() {
		s.guard = nil
		return
	}
	if err := s.c.rt.View.Refresh(ctx); err == nil {
		printPage(s.c.stdout, s.c.rt.View, s.c.rt.Selection)
	} else if !errors.Is(err, registration.ErrSuperseded) {
		s.c.report(err)
	}
}

func (s *shell) stopGuard() {
	if s.guard != nil {
		s.guard.Stop()
		s.guard = nil
	}
}

// authorized reports whether guarded commands may run, telling the operator
// when the session has ended since the last command.
func (s *shell) authorized() bool {
	if s.guard != nil && s.guard.Expired() {
		s.stopGuard()
		fmt.Fprintln(s.c.stdout, "session ended, please log in again")
		return false
	}
	if s.guard == nil {
		fmt.Fprintln(s.c.stdout, "not logged in")
		return false
	}
	return true
}

func (s *shell) dispatch(ctx context.Context, name string, args []string) error {
	c := s.c
	view := c.rt.View
	selection := c.rt.Selection

	switch name {
	case "help":
		fmt.Fprintln(c.stdout, shellHelp)
		return nil
	case "status":
		printStatus(c.stdout, c)
		return nil
	case "login":
		if len(args) != 1 {
			return usagef("login USER")
		}
		password, err := s.readPassword()
		if err != nil {
			return err
		}
		if err := c.rt.Auth.Login(ctx, args[0], password); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "logged in")
		s.startGuard(ctx)
		return nil
	case "login-token":
		if len(args) != 1 {
			return usagef("login-token TOKEN")
		}
		if err := c.rt.Auth.LoginWithToken(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "logged in")
		s.startGuard(ctx)
		return nil
	case "logout":
		s.stopGuard()
		selection.Clear()
		if err := c.rt.Auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "logged out")
		return nil
	}

	if !s.authorized() {
		return nil
	}

	switch name {
	case "list":
		if err := view.Refresh(ctx); err != nil {
			return err
		}
		printPage(c.stdout, view, selection)
	case "filter":
		filter, err := parseFilter(args)
		if err != nil {
			return err
		}
		if err := view.SetFilter(ctx, filter); err != nil {
			return err
		}
		printPage(c.stdout, view, selection)
	case "page":
		if len(args) != 1 {
			return usagef("page N")
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return usagef("page N")
		}
		return s.gotoPage(ctx, page)
	case "next":
		pagination := view.Pagination()
		if pagination.Page >= pagination.Pages {
			fmt.Fprintln(c.stdout, "already on the last page")
			return nil
		}
		return s.gotoPage(ctx, view.Query().Page+1)
	case "prev":
		if view.Query().Page <= 1 {
			fmt.Fprintln(c.stdout, "already on the first page")
			return nil
		}
		return s.gotoPage(ctx, view.Query().Page-1)
	case "select":
		if len(args) == 0 {
			return usagef("select ID...")
		}
		for _, id := range args {
			if _, ok := view.Record(id); !ok {
				fmt.Fprintf(c.stdout, "%s is not on this page\n", id)
				continue
			}
			selection.Toggle(id)
		}
		fmt.Fprintf(c.stdout, "%d selected\n", selection.Count())
	case "select-all":
		selection.SelectAll()
		fmt.Fprintf(c.stdout, "%d selected\n", selection.Count())
	case "toggle-all":
		selection.ToggleAll()
		fmt.Fprintf(c.stdout, "%d selected\n", selection.Count())
	case "clear":
		selection.Clear()
		fmt.Fprintln(c.stdout, "selection cleared")
	case "selected":
		ids := selection.IDs()
		if len(ids) == 0 {
			fmt.Fprintln(c.stdout, "nothing selected")
			return nil
		}
		fmt.Fprintln(c.stdout, strings.Join(ids, " "))
	case "send":
		return cmdSendTicket(ctx, c, args)
	case "send-selected":
		result, err := c.rt.Executor.SendSelected(ctx)
		if err != nil {
			return err
		}
		printBulk(c.stdout, result)
	case "checkin":
		return cmdCheckIn(ctx, c, args)
	case "verify":
		return cmdVerify(ctx, c, args)
	case "export":
		return cmdExport(ctx, c, args)
	case "analytics":
		return cmdAnalytics(ctx, c, args)
	default:
		fmt.Fprintf(c.stdout, "unknown command %q, try help\n", name)
	}
	return nil
}

func (s *shell) gotoPage(ctx context.Context, page int) error {
	if err := s.c.rt.View.SetPage(ctx, page); err != nil {
		return err
	}
	printPage(s.c.stdout, s.c.rt.View, s.c.rt.Selection)
	return nil
}

func parseFilter(args []string) (registration.Filter, error) {
	var filter registration.Filter
	if len(args) == 0 {
		return filter, usagef("filter KEY=VALUE...")
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return filter, usagef("filter KEY=VALUE..., got %q", arg)
		}

		switch strings.ToLower(key) {
		case "search":
			search := value
			filter.Search = &search
		case "allergies":
			allergies, err := strconv.ParseBool(value)
			if err != nil {
				return filter, usagef("allergies=true|false")
			}
			filter.AllergiesOnly = &allergies
		case "ticket":
			tri, err := apiclient.ParseTri(value)
			if err != nil {
				return filter, usagef("ticket=any|true|false")
			}
			filter.TicketSent = &tri
		case "checked":
			tri, err := apiclient.ParseTri(value)
			if err != nil {
				return filter, usagef("checked=any|true|false")
			}
			filter.CheckedIn = &tri
		case "sort":
			sortBy := apiclient.SortField(value)
			filter.SortBy = &sortBy
		case "limit":
			limit, err := strconv.Atoi(value)
			if err != nil {
				return filter, usagef("limit=N")
			}
			filter.Limit = &limit
		default:
			return filter, usagef("unknown filter %q", key)
		}
	}
	return filter, nil
}
