package main

import (
	"context"
	"fmt"

	"github.com/trezcool/entrykart/core/access"
)

func (cli *commandLine) addAdmin(na access.NewAdmin) error {
	adm, err := cli.accessSvc.CreateAdmin(context.Background(), na)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %s (%s)\n", adm.Role, adm.Email, adm.ID)
	return nil
}

// addGuard creates a security guard stationed at the society named `societyName`.
func (cli *commandLine) addGuard(email, societyName, pwd string) error {
	ctx := context.Background()
	soc, err := cli.societySvc.GetSociety(ctx, societyName)
	if err != nil {
		return err
	}
	guard, err := cli.accessSvc.CreateGuard(ctx, access.NewGuard{Email: email, SocietyID: soc.ID, Password: pwd})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created security guard %s at %s (%s)\n", guard.Email, soc.Name, guard.ID)
	return nil
}
