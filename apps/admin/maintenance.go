package main

import (
	"context"
	"fmt"

	"github.com/trezcool/entrykart/core"
)

func (cli *commandLine) penalty(base, due, asOf string) error {
	amount, err := cli.parseAmount("base", base)
	if err != nil {
		return err
	}
	dueDate, err := core.ParseDateField("due", due, cli.maintenanceSvc.Location())
	if err != nil {
		return err
	}
	at, err := cli.parseAsOf("asof", asOf)
	if err != nil {
		return err
	}
	penalty := cli.maintenanceSvc.Preview(amount, dueDate, at)
	fmt.Fprintf(cli.out, "penalty as of %s: %s\n", at.Format(core.DateLayout), penalty.StringFixed(2))
	return nil
}

// ensure prints the owner's statement for the month of asOf, creating the record if needed.
func (cli *commandLine) ensure(email, asOf string) error {
	at, err := cli.parseAsOf("asof", asOf)
	if err != nil {
		return err
	}
	stmt, err := cli.maintenanceSvc.EnsureCurrentPeriodRecord(context.Background(), email, at)
	if err != nil {
		return err
	}
	return cli.printJSON(stmt)
}
