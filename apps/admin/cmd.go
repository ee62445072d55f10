package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/tenant"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	identities *identity.Service
	tenants    *tenant.Service
	migrate    func(args []string) error
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createsuperadmin -email EMAIL - create a platform super-admin, or promote an existing account")
	fmt.Println("  resetpassword -email EMAIL - reset an account's password")
	fmt.Println("  settenantstatus -id ID -status actif|suspendu|bloque [-reason REASON] - change a school's status")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, version...)")
}

// promptPassword reads a password without echoing it; an empty password prints usage.
func promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	superAdminCmd := flag.NewFlagSet("createsuperadmin", flag.ContinueOnError)
	superAdminEmail := superAdminCmd.String("email", "", "The super-admin's email. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	tenantStatusCmd := flag.NewFlagSet("settenantstatus", flag.ContinueOnError)
	tenantID := tenantStatusCmd.String("id", "", "The school's id.")
	tenantStatus := tenantStatusCmd.String("status", "", "The new status: actif, suspendu or bloque.")
	tenantReason := tenantStatusCmd.String("reason", "", "Why the school is suspended or blocked, shown to its staff.")

	switch args[1] {
	case "createsuperadmin":
		if err := superAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *superAdminEmail == "" {
			superAdminCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(superAdminCmd)
		if err != nil {
			return err
		}
		return cli.createSuperAdmin(*superAdminEmail, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "settenantstatus":
		if err := tenantStatusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tenantID == "" || *tenantStatus == "" {
			tenantStatusCmd.Usage()
			return errHelp
		}
		return cli.setTenantStatus(*tenantID, *tenantStatus, *tenantReason)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
