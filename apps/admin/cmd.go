package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/podium/apps/api/echo"
	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	"github.com/trezcool/podium/services/sweeper"
)

var (
	timeNow = func() time.Time { return time.Now().UTC() } // mockable

	errHelp = errors.New("help provided")
)

type statsStore interface {
	achievement.StatsSource
	SetUserStats(ctx context.Context, stats achievement.Stats) error
}

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	svc        *achievement.Service
	stats      statsStore
	sweeper    *sweeper.Sweeper
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]          - run a goose command (up, down, status, up-to VERSION, ...)")
	fmt.Fprintln(cli.out, "  recheck -user ID | -all         - evaluate achievements of a user or of every user with stats")
	fmt.Fprintln(cli.out, "  catalog [-file PATH]            - validate and describe an achievements catalog")
	fmt.Fprintln(cli.out, "  setstats -user ID [-streak N ...] - record a user's stats")
	fmt.Fprintln(cli.out, "  token -user ID                  - issue an API token for a user")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	recheckCmd := flag.NewFlagSet("recheck", flag.ContinueOnError)
	recheckUser := recheckCmd.String("user", "", "The id of the user to evaluate.")
	recheckAll := recheckCmd.Bool("all", false, "Evaluate every user with stats.")

	catalogCmd := flag.NewFlagSet("catalog", flag.ContinueOnError)
	catalogFile := catalogCmd.String("file", cli.conf.Achievements.CatalogPath, "The catalog file. Defaults to the configured (or embedded) catalog.")

	statsCmd := flag.NewFlagSet("setstats", flag.ContinueOnError)
	statsUser := statsCmd.String("user", "", "The id of the user.")
	statsStreak := statsCmd.Int("streak", 0, "Consecutive practice days.")
	statsRoleplays := statsCmd.Int("roleplays", 0, "Completed roleplays.")
	statsTests := statsCmd.Int("tests", 0, "Completed tests.")
	statsScore := statsCmd.Float64("score", 0, "Highest test score (0-100).")
	statsPIs := statsCmd.Int("pis", 0, "Mastered performance indicators.")
	statsWritten := statsCmd.Int("written", 0, "Submitted written events.")
	statsChallenges := statsCmd.Int("challenges", 0, "Completed daily challenges.")
	statsSeason := statsCmd.String("season", "", "Current competitive season.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUser := tokenCmd.String("user", "", "The id of the user.")

	for _, set := range []*flag.FlagSet{recheckCmd, catalogCmd, statsCmd, tokenCmd} {
		set.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])
	case "recheck":
		if err := recheckCmd.Parse(args[2:]); err != nil {
			return err
		}
		if core.CleanString(*recheckUser) == "" && !*recheckAll {
			recheckCmd.Usage()
			return errHelp
		}
		return cli.recheck(core.CleanString(*recheckUser), *recheckAll)
	case "catalog":
		if err := catalogCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.describeCatalog(*catalogFile)
	case "setstats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if core.CleanString(*statsUser) == "" {
			statsCmd.Usage()
			return errHelp
		}
		return cli.setStats(achievement.Stats{
			UserID:                    core.CleanString(*statsUser),
			StreakDays:                *statsStreak,
			RoleplayCount:             *statsRoleplays,
			TestCount:                 *statsTests,
			HighestTestScore:          *statsScore,
			PerformanceIndicatorCount: *statsPIs,
			WrittenEventCount:         *statsWritten,
			DailyChallengeCount:       *statsChallenges,
			Season:                    *statsSeason,
		})
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if core.CleanString(*tokenUser) == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(core.CleanString(*tokenUser))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) recheck(userID string, all bool) error {
	ctx := context.Background()
	if all {
		n, err := cli.sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d achievement(s) awarded\n", n)
		return nil
	}

	earned, err := cli.svc.Evaluate(ctx, userID)
	if err != nil {
		return err
	}
	for _, ach := range earned {
		fmt.Fprintf(cli.out, "+ %s (%s, %d pts)\n", ach.Achievement.Name, ach.Achievement.Tier, ach.Achievement.Points)
	}
	fmt.Fprintf(cli.out, "%d achievement(s) awarded\n", len(earned))
	return nil
}

func (cli *commandLine) describeCatalog(path string) error {
	catalog := cli.svc.Catalog()
	if path != "" {
		var err error
		if catalog, err = achievement.LoadCatalogFile(path, cli.validate, cli.translator); err != nil {
			var vErr *core.ValidationError
			if errors.As(err, &vErr) {
				for _, fErr := range vErr.Fields {
					fmt.Fprintf(cli.out, "  %s: %s\n", fErr.Field, fErr.Error)
				}
			}
			return err
		}
	}

	byCategory := make(map[string]int)
	hidden := 0
	for _, def := range catalog.Definitions() {
		byCategory[string(def.Category)]++
		if def.IsHidden {
			hidden++
		}
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	fmt.Fprintf(cli.out, "%d achievement(s), %d hidden\n", catalog.Len(), hidden)
	for _, c := range categories {
		fmt.Fprintf(cli.out, "  %s: %d\n", c, byCategory[c])
	}
	return nil
}

func (cli *commandLine) setStats(stats achievement.Stats) error {
	stats.UpdatedAt = timeNow()
	return cli.stats.SetUserStats(context.Background(), stats)
}

func (cli *commandLine) token(userID string) error {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(userID, cli.conf), cli.conf)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
