package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/billing"
	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/services/jobs"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	db       *sql.DB // set on the postgres store only
	out      io.Writer
	logger   core.Logger
	resolver *member.Resolver
	dir      *member.Directory
	billing  *billing.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]              - run a migration command (up, down, status...) on the postgres store")
	fmt.Fprintln(cli.out, "  salaries [-institute ID] [-month M] - generate the salaries of month M (YYYY-MM, last month by default)")
	fmt.Fprintln(cli.out, "  role -uid UID                       - show the role an account resolves to")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	salariesCmd := flag.NewFlagSet("salaries", flag.ContinueOnError)
	salariesCmd.SetOutput(cli.out)
	salariesInst := salariesCmd.String("institute", "", "Only this institute (all of them by default).")
	salariesMonth := salariesCmd.String("month", "", "The month, as YYYY-MM. Last month by default.")

	roleCmd := flag.NewFlagSet("role", flag.ContinueOnError)
	roleCmd.SetOutput(cli.out)
	roleUID := roleCmd.String("uid", "", "The account id.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "salaries":
		if err := salariesCmd.Parse(args[2:]); err != nil {
			return err
		}
		month := *salariesMonth
		if month == "" {
			month = jobs.PreviousMonth(core.NowFunc().In(cli.conf.Location()))
		}
		return cli.generateSalaries(ctx, *salariesInst, month)
	case "role":
		if err := roleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *roleUID == "" {
			roleCmd.Usage()
			return errHelp
		}
		return cli.showRole(ctx, *roleUID)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) generateSalaries(ctx context.Context, instituteID, month string) error {
	if instituteID == "" {
		job := jobs.NewSalaryJob(cli.dir, cli.billing, cli.logger, cli.conf.Location())
		results, err := job.RunFor(ctx, month)
		for id, res := range results {
			cli.printBulk(id, month, res)
		}
		return err
	}

	res, err := cli.billing.GenerateAllSalaries(ctx, instituteID, month)
	cli.printBulk(instituteID, month, res)
	return err
}

func (cli *commandLine) printBulk(instituteID, month string, res billing.BulkResult) {
	fmt.Fprintf(cli.out, "%s %s: %d generated, %d skipped, %d failed\n",
		instituteID, month, len(res.Generated), len(res.Skipped), len(res.Failed))
	for _, sal := range res.Generated {
		fmt.Fprintf(cli.out, "  %-24s %2d/%2d days  %10.2f\n", sal.TrainerName, sal.PresentDays, sal.TotalDays, sal.PayableSalary)
	}
}

func (cli *commandLine) showRole(ctx context.Context, uid string) error {
	role, err := cli.resolver.Resolve(ctx, member.Identity{UID: uid})
	if err != nil {
		return err
	}
	actions := role.Actions()
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	fmt.Fprintf(cli.out, "%s: %s", uid, role.Kind)
	if role.Name != "" {
		fmt.Fprintf(cli.out, " (%s, institute %s)", role.Name, role.InstituteID)
	}
	fmt.Fprintf(cli.out, "\nactions: %s\n", strings.Join(names, ", "))
	return nil
}
