package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/darasa/backend/core/override"
	"github.com/darasa/backend/core/progression"
	"github.com/darasa/backend/core/suspension"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sqlx.DB
	progSvc *progression.Service
	suspSvc *suspension.Service
	overSvc *override.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  seed - load demo courses, modules and enrollments")
	fmt.Println("  sweep - open all due release gates now")
	fmt.Println("  grantfullcredit -student ID -module ID -enrollment ID -instructor ID [-reason TEXT] - grant full module credit")
	fmt.Println("  reinstate -suspension ID -instructor ID - lift a suspension")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	fullCreditCmd := flag.NewFlagSet("grantfullcredit", flag.ExitOnError)
	fcStudent := fullCreditCmd.Int("student", 0, "The student's id.")
	fcModule := fullCreditCmd.Int("module", 0, "The module's id.")
	fcEnrollment := fullCreditCmd.Int("enrollment", 0, "The enrollment's id.")
	fcInstructor := fullCreditCmd.Int("instructor", 0, "The granting instructor's id.")
	fcReason := fullCreditCmd.String("reason", "", "Why the credit is granted.")

	reinstateCmd := flag.NewFlagSet("reinstate", flag.ExitOnError)
	rsSuspension := reinstateCmd.Int("suspension", 0, "The suspension's id.")
	rsInstructor := reinstateCmd.Int("instructor", 0, "The reinstating instructor's id.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		return cli.seed(ctx)
	case "sweep":
		return cli.progSvc.SweepReleases(ctx)
	case "grantfullcredit":
		if err := fullCreditCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *fcStudent == 0 || *fcModule == 0 || *fcEnrollment == 0 || *fcInstructor == 0 {
			fullCreditCmd.Usage()
			return errHelp
		}
		res, err := cli.overSvc.GrantFullCredit(ctx, override.GrantFullCredit{
			StudentID:    *fcStudent,
			ModuleID:     *fcModule,
			EnrollmentID: *fcEnrollment,
			InstructorID: *fcInstructor,
			Reason:       *fcReason,
		})
		if err != nil {
			return err
		}
		fmt.Printf("module %d -> %s (score %.2f)\n", res.ModuleID, res.Status, res.WeightedScore)
		return nil
	case "reinstate":
		if err := reinstateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rsSuspension == 0 || *rsInstructor == 0 {
			reinstateCmd.Usage()
			return errHelp
		}
		view, err := cli.suspSvc.Reinstate(ctx, *rsSuspension, *rsInstructor)
		if err != nil {
			return err
		}
		fmt.Printf("suspension %d lifted for student %d\n", view.ID, view.StudentID)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}
