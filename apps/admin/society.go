package main

import (
	"context"
	"fmt"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

func (cli *commandLine) addSociety(ns society.NewSociety) error {
	soc, err := cli.societySvc.CreateSociety(context.Background(), cliPrincipal, ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created society %s with %d flats, managed by %s (%s)\n", soc.Name, len(soc.Flats), soc.AdminEmail, soc.ID)
	return nil
}

func (cli *commandLine) addOwner(no society.NewOwner) error {
	owner, err := cli.societySvc.CreateOwner(context.Background(), no)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "registered %s as owner of %s, %s (%s)\n", owner.Email, owner.SocietyName, owner.FlatNumber, owner.ID)
	return nil
}

func (cli *commandLine) updateSociety(name string, us society.UpdateSociety) error {
	ctx := context.Background()
	soc, err := cli.societySvc.GetSociety(ctx, name)
	if err != nil {
		return err
	}
	soc, err = cli.societySvc.UpdateSociety(ctx, cliPrincipal, access.AllSocieties, soc.ID, us)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated society %s in %s with %d flats, managed by %s\n", soc.Name, soc.Location, len(soc.Flats), soc.AdminEmail)
	return nil
}

func (cli *commandLine) deleteSociety(name string) error {
	ctx := context.Background()
	soc, err := cli.societySvc.GetSociety(ctx, name)
	if err != nil {
		return err
	}
	if err = cli.societySvc.DeleteSociety(ctx, cliPrincipal, access.AllSocieties, soc.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted society %s\n", soc.Name)
	return nil
}

func (cli *commandLine) listSocieties() error {
	ctx := context.Background()
	count, err := cli.societySvc.CountSocieties(ctx, access.AllSocieties)
	if err != nil {
		return err
	}
	socs, err := cli.societySvc.QuerySocieties(ctx, access.AllSocieties)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "societies: %d\n", count)
	for _, soc := range socs {
		fmt.Fprintf(cli.out, "  %s, %s: %d flats, managed by %s\n", soc.Name, soc.Location, len(soc.Flats), soc.AdminEmail)
	}
	return nil
}

func (cli *commandLine) updateOwner(email string, uo society.UpdateOwner) error {
	ctx := context.Background()
	owner, err := cli.societySvc.GetOwnerByEmail(ctx, email)
	if err != nil {
		return err
	}
	owner, err = cli.societySvc.UpdateOwner(ctx, cliPrincipal, access.AllSocieties, owner.ID, uo)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated %s, owner of %s, %s\n", owner.Email, owner.SocietyName, owner.FlatNumber)
	return nil
}

func (cli *commandLine) deleteOwner(email string) error {
	ctx := context.Background()
	owner, err := cli.societySvc.GetOwnerByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = cli.societySvc.DeleteOwner(ctx, cliPrincipal, access.AllSocieties, owner.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted owner %s of %s, %s\n", owner.Email, owner.SocietyName, owner.FlatNumber)
	return nil
}
