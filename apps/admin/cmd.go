package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations only apply to the postgres engine")

	// cliPrincipal is who the CLI acts as: it may register societies for any admin.
	cliPrincipal = access.Principal{Name: "admin cli", Role: access.RoleSuperAdmin}
)

type commandLine struct {
	db             *sqlx.DB // nil unless the engine is postgres
	accessSvc      access.Service
	societySvc     society.Service
	maintenanceSvc maintenance.Service
	out            io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the postgres database")
	fmt.Fprintln(cli.out, "  addadmin -email EMAIL -name NAME [-phone PHONE] [-superadmin] - create an admin")
	fmt.Fprintln(cli.out, "  addguard -email EMAIL -society NAME - create a security guard")
	fmt.Fprintln(cli.out, "  addsociety -name NAME -location LOCATION -admin EMAIL [-flats N] - register a society")
	fmt.Fprintln(cli.out, "  updatesociety -name NAME [-location LOCATION] [-flats N] [-admin EMAIL] - correct a society")
	fmt.Fprintln(cli.out, "  delsociety -name NAME - delete a society with its owners and their records")
	fmt.Fprintln(cli.out, "  societies - list the societies")
	fmt.Fprintln(cli.out, "  addowner -email EMAIL -name NAME -society NAME -flat FLAT - register a flat owner")
	fmt.Fprintln(cli.out, "  updateowner -email EMAIL [-name NAME] [-flat FLAT] [-contact PHONE] [-profession PROFESSION] - correct an owner")
	fmt.Fprintln(cli.out, "  delowner -email EMAIL - delete an owner with their records")
	fmt.Fprintln(cli.out, "  penalty -due YYYY-MM-DD [-base AMOUNT] [-asof YYYY-MM-DD] - compute a late payment penalty")
	fmt.Fprintln(cli.out, "  ensure -email EMAIL [-asof YYYY-MM-DD] - show an owner's current month, creating it if needed")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := cli.newFlagSet("addadmin")
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")
	addAdminName := addAdminCmd.String("name", "", "The admin's name.")
	addAdminPhone := addAdminCmd.String("phone", "", "The admin's phone number.")
	addAdminSuper := addAdminCmd.Bool("superadmin", false, "Grant access to every society.")

	addGuardCmd := cli.newFlagSet("addguard")
	addGuardEmail := addGuardCmd.String("email", "", "The guard's email. The password will be prompted next.")
	addGuardSociety := addGuardCmd.String("society", "", "The society the guard is stationed at.")

	addSocietyCmd := cli.newFlagSet("addsociety")
	addSocietyName := addSocietyCmd.String("name", "", "The society's name.")
	addSocietyLocation := addSocietyCmd.String("location", "", "The society's location.")
	addSocietyAdmin := addSocietyCmd.String("admin", "", "The email of the admin managing the society.")
	addSocietyFlats := addSocietyCmd.Int("flats", 0, "The number of flats, numbered from \"Flat 1\".")

	updateSocietyCmd := cli.newFlagSet("updatesociety")
	updateSocietyName := updateSocietyCmd.String("name", "", "The society's name.")
	updateSocietyLocation := updateSocietyCmd.String("location", "", "The society's new location.")
	updateSocietyFlats := updateSocietyCmd.Int("flats", 0, "The new number of flats. 0 allows any flat.")
	updateSocietyAdmin := updateSocietyCmd.String("admin", "", "The email of the admin taking the society over.")

	delSocietyCmd := cli.newFlagSet("delsociety")
	delSocietyName := delSocietyCmd.String("name", "", "The society's name.")

	addOwnerCmd := cli.newFlagSet("addowner")
	addOwnerEmail := addOwnerCmd.String("email", "", "The owner's email.")
	addOwnerName := addOwnerCmd.String("name", "", "The owner's name.")
	addOwnerSociety := addOwnerCmd.String("society", "", "The owner's society.")
	addOwnerFlat := addOwnerCmd.String("flat", "", "The owner's flat, e.g. \"Flat 12\".")
	addOwnerContact := addOwnerCmd.String("contact", "", "The owner's phone number.")
	addOwnerProfession := addOwnerCmd.String("profession", "", "The owner's profession.")

	updateOwnerCmd := cli.newFlagSet("updateowner")
	updateOwnerEmail := updateOwnerCmd.String("email", "", "The owner's email.")
	updateOwnerName := updateOwnerCmd.String("name", "", "The owner's new name.")
	updateOwnerFlat := updateOwnerCmd.String("flat", "", "The owner's new flat.")
	updateOwnerContact := updateOwnerCmd.String("contact", "", "The owner's new phone number.")
	updateOwnerProfession := updateOwnerCmd.String("profession", "", "The owner's new profession.")

	delOwnerCmd := cli.newFlagSet("delowner")
	delOwnerEmail := delOwnerCmd.String("email", "", "The owner's email.")

	penaltyCmd := cli.newFlagSet("penalty")
	penaltyBase := penaltyCmd.String("base", "", "The base amount. Defaults to the configured amount.")
	penaltyDue := penaltyCmd.String("due", "", "The due date.")
	penaltyAsOf := penaltyCmd.String("asof", "", "The date to compute the penalty at. Defaults to today.")

	ensureCmd := cli.newFlagSet("ensure")
	ensureEmail := ensureCmd.String("email", "", "The owner's email.")
	ensureAsOf := ensureCmd.String("asof", "", "The date to evaluate the month at. Defaults to today.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addadmin":
		if err := cli.parse(addAdminCmd, args[2:]); err != nil {
			return err
		}
		if *addAdminEmail == "" || *addAdminName == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addAdminCmd)
		if err != nil {
			return err
		}
		role := access.RoleAdmin
		if *addAdminSuper {
			role = access.RoleSuperAdmin
		}
		return cli.addAdmin(access.NewAdmin{
			Name:     *addAdminName,
			Email:    *addAdminEmail,
			Phone:    *addAdminPhone,
			Role:     role,
			Password: pwd,
		})

	case "addguard":
		if err := cli.parse(addGuardCmd, args[2:]); err != nil {
			return err
		}
		if *addGuardEmail == "" || *addGuardSociety == "" {
			addGuardCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addGuardCmd)
		if err != nil {
			return err
		}
		return cli.addGuard(*addGuardEmail, *addGuardSociety, pwd)

	case "addsociety":
		if err := cli.parse(addSocietyCmd, args[2:]); err != nil {
			return err
		}
		if *addSocietyName == "" {
			addSocietyCmd.Usage()
			return errHelp
		}
		return cli.addSociety(society.NewSociety{
			Name:       *addSocietyName,
			Location:   *addSocietyLocation,
			TotalFlats: *addSocietyFlats,
			AdminEmail: *addSocietyAdmin,
		})

	case "updatesociety":
		if err := cli.parse(updateSocietyCmd, args[2:]); err != nil {
			return err
		}
		if *updateSocietyName == "" {
			updateSocietyCmd.Usage()
			return errHelp
		}
		var us society.UpdateSociety
		set := setFlags(updateSocietyCmd)
		if set["location"] {
			us.Location = updateSocietyLocation
		}
		if set["flats"] {
			us.TotalFlats = updateSocietyFlats
		}
		if set["admin"] {
			us.AdminEmail = updateSocietyAdmin
		}
		return cli.updateSociety(*updateSocietyName, us)

	case "delsociety":
		if err := cli.parse(delSocietyCmd, args[2:]); err != nil {
			return err
		}
		if *delSocietyName == "" {
			delSocietyCmd.Usage()
			return errHelp
		}
		return cli.deleteSociety(*delSocietyName)

	case "societies":
		return cli.listSocieties()

	case "addowner":
		if err := cli.parse(addOwnerCmd, args[2:]); err != nil {
			return err
		}
		if *addOwnerEmail == "" {
			addOwnerCmd.Usage()
			return errHelp
		}
		return cli.addOwner(society.NewOwner{
			SocietyName: *addOwnerSociety,
			FlatNumber:  *addOwnerFlat,
			OwnerName:   *addOwnerName,
			Profession:  *addOwnerProfession,
			Contact:     *addOwnerContact,
			Email:       *addOwnerEmail,
		})

	case "updateowner":
		if err := cli.parse(updateOwnerCmd, args[2:]); err != nil {
			return err
		}
		if *updateOwnerEmail == "" {
			updateOwnerCmd.Usage()
			return errHelp
		}
		var uo society.UpdateOwner
		set := setFlags(updateOwnerCmd)
		if set["name"] {
			uo.OwnerName = updateOwnerName
		}
		if set["flat"] {
			uo.FlatNumber = updateOwnerFlat
		}
		if set["contact"] {
			uo.Contact = updateOwnerContact
		}
		if set["profession"] {
			uo.Profession = updateOwnerProfession
		}
		return cli.updateOwner(*updateOwnerEmail, uo)

	case "delowner":
		if err := cli.parse(delOwnerCmd, args[2:]); err != nil {
			return err
		}
		if *delOwnerEmail == "" {
			delOwnerCmd.Usage()
			return errHelp
		}
		return cli.deleteOwner(*delOwnerEmail)

	case "penalty":
		if err := cli.parse(penaltyCmd, args[2:]); err != nil {
			return err
		}
		if *penaltyDue == "" {
			penaltyCmd.Usage()
			return errHelp
		}
		return cli.penalty(*penaltyBase, *penaltyDue, *penaltyAsOf)

	case "ensure":
		if err := cli.parse(ensureCmd, args[2:]); err != nil {
			return err
		}
		if *ensureEmail == "" {
			ensureCmd.Usage()
			return errHelp
		}
		return cli.ensure(*ensureEmail, *ensureAsOf)

	default:
		cli.printUsage()
		return errHelp
	}
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

// parseAsOf parses an optional date, defaulting to now.
func (cli *commandLine) parseAsOf(field, s string) (time.Time, error) {
	if s == "" {
		return cli.maintenanceSvc.Now(), nil
	}
	return core.ParseDateField(field, s, cli.maintenanceSvc.Location())
}

// parseAmount parses an optional amount; nil when unset.
func (cli *commandLine) parseAmount(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsNegative() {
		return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "must not be a negative amount"})
	}
	return &amount, nil
}

func (cli *commandLine) printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(b))
	return err
}
