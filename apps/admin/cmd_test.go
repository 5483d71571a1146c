package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	logsvc "github.com/trezcool/entrykart/services/logger"
	"github.com/trezcool/entrykart/tests"
)

var now = testutil.Date(2024, time.January, 17)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	_, repos := testutil.InMemRepos()
	validate := testutil.NewValidator()

	societySvc := society.NewService(repos.Society, validate)
	accessSvc := access.NewService(repos.Access, repos.Society, validate)
	opts := maintenance.Options{
		Location: time.UTC,
		NowFunc:  func() time.Time { return now },
	}
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		accessSvc:      accessSvc,
		societySvc:     societySvc,
		maintenanceSvc: maintenance.NewService(repos.Maintenance, societySvc, accessSvc, validate, logsvc.NewDiscardLogger(), opts),
		out:            out,
	}, out
}

type cliTest struct {
	name           string
	args           []string // without program name
	wantErr        error
	wantErrStr     string
	wantValidation bool
	wantNotFound   bool
	wantOut        string // substring of the output
	extra          interface{}
}

func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	var verr *core.ValidationError
	return errors.As(err, &verrs) || errors.As(err, &verr)
}

func (tt cliTest) check(t *testing.T, err error, out string) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case tt.wantValidation:
		if !isValidation(err) {
			t.Errorf("cli.run() error = %v, want a validation error", err)
		}
	case tt.wantNotFound:
		if !core.IsNotFound(err) {
			t.Errorf("cli.run() error = %v, want a not found error", err)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	default:
		if !strings.Contains(out, tt.wantOut) {
			t.Errorf("cli.run() output = %q, want it to contain %q", out, tt.wantOut)
		}
	}
}

func runTests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) {
				if pwd, ok := tt.extra.(string); ok {
					return []byte(pwd), nil
				}
				return nil, nil
			}
			out.Reset()
			err := cli.run(args)
			tt.check(t, err, out.String())
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)
	runTests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "help flag", args: []string{"addadmin", "-h"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"addadmin", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	t.Run("not postgres", func(t *testing.T) {
		if err := cli.run([]string{"admin", "migrate", "up"}); err != errNoSQL {
			t.Errorf("cli.run() error = %v, wantErr %v", err, errNoSQL)
		}
	})

	cli.db = &sqlx.DB{}
	gooseRunFunc = func(command string, db *sqlx.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runTests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "receipts", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_addAdmin(t *testing.T) {
	cli, out := setup(t)
	pwd := "Gr33n!Gate"

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"addadmin"}, wantErr: errHelp},
		{name: "no name", args: []string{"addadmin", "-email", "admin@test.in"}, wantErr: errHelp},
		{name: "no password", args: []string{"addadmin", "-email", "admin@test.in", "-name", "Asha"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"addadmin", "-email", "lol", "-name", "Asha"}, extra: pwd, wantValidation: true},
		{name: "weak password", args: []string{"addadmin", "-email", "admin@test.in", "-name", "Asha"}, extra: "password", wantValidation: true},
		{name: "admin", args: []string{"addadmin", "-email", "Admin@Test.in", "-name", "Asha"}, extra: pwd, wantOut: "created admin admin@test.in"},
		{name: "superadmin", args: []string{"addadmin", "-email", "super@test.in", "-name", "Ravi", "-superadmin"}, extra: pwd, wantOut: "created superadmin super@test.in"},
		{name: "email taken", args: []string{"addadmin", "-email", "admin@test.in", "-name", "Asha"}, extra: pwd, wantValidation: true},
	})

	p, err := cli.accessSvc.Resolve(context.Background(), "super@test.in")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if p.Role != access.RoleSuperAdmin {
		t.Errorf("Resolve() role = %s, want %s", p.Role, access.RoleSuperAdmin)
	}
}

func Test_commandLine_addGuard(t *testing.T) {
	cli, out := setup(t)
	pwd := "Gr33n!Gate"
	if err := cli.run([]string{"admin", "addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in"}); err != nil {
		t.Fatalf("addsociety failed: %v", err)
	}

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"addguard"}, wantErr: errHelp},
		{name: "no society", args: []string{"addguard", "-email", "gate@test.in"}, wantErr: errHelp},
		{name: "no password", args: []string{"addguard", "-email", "gate@test.in", "-society", "Green Park"}, wantErr: errHelp},
		{name: "unknown society", args: []string{"addguard", "-email", "gate@test.in", "-society", "Blue Hills"}, extra: pwd, wantNotFound: true},
		{name: "guard", args: []string{"addguard", "-email", "gate@test.in", "-society", " green park "}, extra: pwd, wantOut: "created security guard gate@test.in at Green Park"},
		{name: "email taken", args: []string{"addguard", "-email", "gate@test.in", "-society", "Green Park"}, extra: pwd, wantValidation: true},
	})

	p, err := cli.accessSvc.Resolve(context.Background(), "gate@test.in")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if p.Role != access.RoleSecurityGuard {
		t.Errorf("Resolve() role = %s, want %s", p.Role, access.RoleSecurityGuard)
	}
}

func Test_commandLine_addSociety(t *testing.T) {
	cli, out := setup(t)

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"addsociety"}, wantErr: errHelp},
		{name: "no admin", args: []string{"addsociety", "-name", "Green Park", "-location", "Pune"}, wantValidation: true},
		{name: "no location", args: []string{"addsociety", "-name", "Green Park", "-admin", "admin@test.in"}, wantValidation: true},
		{name: "negative flats", args: []string{"addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in", "-flats", "-1"}, wantValidation: true},
		{name: "society", args: []string{"addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in", "-flats", "12"}, wantOut: "created society Green Park with 12 flats, managed by admin@test.in"},
		{name: "name taken", args: []string{"addsociety", "-name", "green park", "-location", "Pune", "-admin", "other@test.in"}, wantValidation: true},
	})

	soc, err := cli.societySvc.GetSociety(context.Background(), "Green Park")
	if err != nil {
		t.Fatalf("GetSociety() failed: %v", err)
	}
	if !soc.HasFlat("Flat 12") || soc.HasFlat("Flat 13") {
		t.Errorf("GetSociety() flats = %v, want Flat 1 to Flat 12", soc.Flats)
	}
}

func Test_commandLine_addOwner(t *testing.T) {
	cli, out := setup(t)
	if err := cli.run([]string{"admin", "addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in", "-flats", "4"}); err != nil {
		t.Fatalf("addsociety failed: %v", err)
	}

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"addowner"}, wantErr: errHelp},
		{name: "no flat", args: []string{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park"}, wantValidation: true},
		{name: "unknown society", args: []string{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Blue Hills", "-flat", "Flat 1"}, wantValidation: true},
		{name: "unknown flat", args: []string{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park", "-flat", "Flat 5"}, wantValidation: true},
		{name: "owner", args: []string{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park", "-flat", "Flat 1", "-contact", "9800000000"}, wantOut: "registered owner@test.in as owner of Green Park, Flat 1"},
		{name: "email taken", args: []string{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park", "-flat", "Flat 2"}, wantValidation: true},
	})

	owner, err := cli.societySvc.GetOwnerByEmail(context.Background(), "owner@test.in")
	if err != nil {
		t.Fatalf("GetOwnerByEmail() failed: %v", err)
	}
	if owner.AdminEmail != "admin@test.in" {
		t.Errorf("GetOwnerByEmail() admin = %s, want admin@test.in", owner.AdminEmail)
	}
}

func Test_commandLine_societyLifecycle(t *testing.T) {
	cli, out := setup(t)
	for _, args := range [][]string{
		{"addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in", "-flats", "4"},
		{"addsociety", "-name", "Blue Hills", "-location", "Mumbai", "-admin", "other@test.in"},
		{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park", "-flat", "Flat 3"},
		{"addowner", "-email", "blue@test.in", "-name", "Ravi", "-society", "Blue Hills", "-flat", "B-1"},
		{"ensure", "-email", "blue@test.in"},
	} {
		if err := cli.run(append([]string{"admin"}, args...)); err != nil {
			t.Fatalf("%s failed: %v", args[0], err)
		}
	}

	runTests(t, cli, out, []cliTest{
		{name: "list", args: []string{"societies"}, wantOut: "societies: 2"},
		{name: "update without name", args: []string{"updatesociety", "-location", "Thane"}, wantErr: errHelp},
		{name: "update unknown society", args: []string{"updatesociety", "-name", "Atlantis", "-location", "Thane"}, wantNotFound: true},
		{name: "shrink below an owner", args: []string{"updatesociety", "-name", "Green Park", "-flats", "2"}, wantValidation: true},
		{name: "blank location", args: []string{"updatesociety", "-name", "Green Park", "-location", " "}, wantValidation: true},
		{
			name:    "update society",
			args:    []string{"updatesociety", "-name", "green park", "-location", "Baner", "-flats", "6", "-admin", "other@test.in"},
			wantOut: "updated society Green Park in Baner with 6 flats, managed by other@test.in",
		},
		{name: "update without email", args: []string{"updateowner", "-name", "Meera Rao"}, wantErr: errHelp},
		{name: "update unknown owner", args: []string{"updateowner", "-email", "lol@test.in", "-name", "X"}, wantNotFound: true},
		{name: "move to unknown flat", args: []string{"updateowner", "-email", "owner@test.in", "-flat", "Flat 9"}, wantValidation: true},
		{
			name:    "update owner",
			args:    []string{"updateowner", "-email", "owner@test.in", "-flat", "Flat 6", "-contact", "98450"},
			wantOut: "updated owner@test.in, owner of Green Park, Flat 6",
		},
		{name: "delete unknown owner", args: []string{"delowner", "-email", "lol@test.in"}, wantNotFound: true},
		{name: "delete owner", args: []string{"delowner", "-email", "owner@test.in"}, wantOut: "deleted owner owner@test.in of Green Park, Flat 6"},
		{name: "delete unknown society", args: []string{"delsociety", "-name", "Atlantis"}, wantNotFound: true},
		{name: "delete society", args: []string{"delsociety", "-name", "Blue Hills"}, wantOut: "deleted society Blue Hills"},
		{name: "list after deletes", args: []string{"societies"}, wantOut: "societies: 1"},
	})

	ctx := context.Background()
	soc, err := cli.societySvc.GetSociety(ctx, "Green Park")
	if err != nil {
		t.Fatalf("GetSociety() failed: %v", err)
	}
	if soc.AdminEmail != "other@test.in" || len(soc.Flats) != 6 {
		t.Errorf("GetSociety() = %+v, want 6 flats managed by other@test.in", soc)
	}
	for _, email := range []string{"owner@test.in", "blue@test.in"} {
		if _, err = cli.societySvc.GetOwnerByEmail(ctx, email); !core.IsNotFound(err) {
			t.Errorf("GetOwnerByEmail(%s) error = %v, want not found", email, err)
		}
	}
	count, err := cli.maintenanceSvc.Count(ctx, access.AllSocieties, maintenance.QueryFilter{})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want the deleted owners' records gone", count)
	}
}

func Test_commandLine_penalty(t *testing.T) {
	cli, out := setup(t)

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"penalty"}, wantErr: errHelp},
		{name: "invalid due", args: []string{"penalty", "-due", "05/12/2023"}, wantValidation: true},
		{name: "invalid asof", args: []string{"penalty", "-due", "2023-12-05", "-asof", "lol"}, wantValidation: true},
		{name: "invalid base", args: []string{"penalty", "-due", "2023-12-05", "-base", "-10"}, wantValidation: true},
		{name: "within grace", args: []string{"penalty", "-due", "2024-01-05", "-asof", "2024-01-08"}, wantOut: "penalty as of 2024-01-08: 0.00"},
		{name: "first week", args: []string{"penalty", "-due", "2024-01-05", "-asof", "2024-01-11"}, wantOut: "penalty as of 2024-01-11: 100.00"},
		{name: "defaults to now", args: []string{"penalty", "-due", "2023-12-05"}, wantOut: "penalty as of 2024-01-17: 600.00"},
		{name: "zero base", args: []string{"penalty", "-due", "2023-12-05", "-base", "0"}, wantOut: "penalty as of 2024-01-17: 0.00"},
		{name: "custom base", args: []string{"penalty", "-due", "2023-12-05", "-base", "2000"}, wantOut: "penalty as of 2024-01-17: 1200.00"},
	})
}

func Test_commandLine_ensure(t *testing.T) {
	cli, out := setup(t)
	for _, args := range [][]string{
		{"addsociety", "-name", "Green Park", "-location", "Pune", "-admin", "admin@test.in", "-flats", "4"},
		{"addowner", "-email", "owner@test.in", "-name", "Meera", "-society", "Green Park", "-flat", "Flat 1"},
	} {
		if err := cli.run(append([]string{"admin"}, args...)); err != nil {
			t.Fatalf("%s failed: %v", args[0], err)
		}
	}

	runTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"ensure"}, wantErr: errHelp},
		{name: "invalid asof", args: []string{"ensure", "-email", "owner@test.in", "-asof", "lol"}, wantValidation: true},
		{name: "unknown owner", args: []string{"ensure", "-email", "lol@test.in"}, wantNotFound: true},
		{name: "current month", args: []string{"ensure", "-email", "owner@test.in"}, wantOut: `"period": "2024-01"`},
		{name: "explicit date", args: []string{"ensure", "-email", "owner@test.in", "-asof", "2024-02-03"}, wantOut: `"period": "2024-02"`},
	})

	out.Reset()
	if err := cli.run([]string{"admin", "ensure", "-email", "owner@test.in"}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	var stmt maintenance.Statement
	if err := json.Unmarshal(out.Bytes(), &stmt); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if stmt.Email != "owner@test.in" || stmt.Maintenance.Status != maintenance.StatusOverdue {
		t.Errorf("ensure statement = %+v, want an Overdue record of owner@test.in", stmt)
	}
}
