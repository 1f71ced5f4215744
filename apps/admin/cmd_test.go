package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podium/core/achievement"
	"github.com/trezcool/podium/services/sweeper"
	sqlxrepos "github.com/trezcool/podium/storage/database/sqlx"
	"github.com/trezcool/podium/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := testutil.NewConfig()

	// set up DB & repos
	db := testutil.OpenDB(t, conf)
	stats := sqlxrepos.NewStatsSource(db)

	// set up services
	logger := &testutil.Logger{}
	validate, translator := testutil.NewValidator()
	svc := achievement.NewService(testutil.DefaultCatalog(t), sqlxrepos.NewAchievementRepository(db), stats, logger, conf)

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		conf:       conf,
		db:         db,
		svc:        svc,
		stats:      stats,
		sweeper:    sweeper.New(svc, stats, logger, conf),
		validate:   validate,
		translator: translator,
		out:        &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCliTests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if !strings.Contains(err.Error(), tt.wantErrStr) {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() no error, want %v%s", tt.wantErr, tt.wantErrStr)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("cli.run() output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, out := setup(t)

	runCliTests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown flag", args: []string{"token", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	runMigrationsFunc = func(db *sqlx.DB, command string, args ...string) error {
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
	t.Cleanup(func() { runMigrationsFunc = origRunMigrations })

	runCliTests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "leaderboard", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_setStatsAndRecheck(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = origTimeNow })

	runCliTests(t, cli, out, []cliTest{
		{name: "setstats: no user", args: []string{"setstats", "-roleplays", "5"}, wantErr: errHelp},
		{name: "setstats", args: []string{"setstats", "-user", "u1", "-roleplays", "5", "-score", "92.5", "-tests", "3"}},
		{name: "recheck: no user", args: []string{"recheck"}, wantErr: errHelp},
		{name: "recheck", args: []string{"recheck", "-user", "u1"}, wantOut: "5 achievement(s) awarded"},
		{name: "recheck again", args: []string{"recheck", "-user", "u1"}, wantOut: "0 achievement(s) awarded"},
		{name: "setstats other user", args: []string{"setstats", "-user", "u2", "-streak", "7"}},
		{name: "recheck all", args: []string{"recheck", "-all"}, wantOut: "2 achievement(s) awarded"},
	})

	stats, err := cli.stats.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RoleplayCount)
	assert.Equal(t, 92.5, stats.HighestTestScore)
	assert.True(t, now.Equal(stats.UpdatedAt))

	// roleplay_first, roleplay_5, test_first, test_score_80, test_score_90
	earned, err := cli.svc.UserAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, earned, 5)

	// streak_3, streak_7
	earned, err = cli.svc.UserAchievements(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, earned, 2)
}

func Test_commandLine_catalog(t *testing.T) {
	cli, out := setup(t)
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
achievements:
  - {id: first_steps, name: First Steps, category: General, type: roleplay_complete, threshold: 1, points: 5, tier: bronze}
  - {id: secret, name: Secret, category: Bonus, type: streak, threshold: 2, points: 5, tier: gold, hidden: true}
`), 0o600))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
achievements:
  - {id: First Steps, name: First Steps, category: General, type: roleplay_complete, tier: bronze}
`), 0o600))

	runCliTests(t, cli, out, []cliTest{
		{name: "default catalog", args: []string{"catalog"}, wantOut: fmt.Sprintf("%d achievement(s), 2 hidden", cli.svc.Catalog().Len())},
		{name: "catalog file", args: []string{"catalog", "-file", valid}, wantOut: "2 achievement(s), 1 hidden"},
		{name: "categories", args: []string{"catalog", "-file", valid}, wantOut: "  Bonus: 1\n  General: 1\n"},
		{name: "invalid catalog", args: []string{"catalog", "-file", invalid}, wantErrStr: "invalid achievements catalog", wantOut: "achievements[0].id"},
		{name: "missing file", args: []string{"catalog", "-file", filepath.Join(dir, "nope.yaml")}, wantErrStr: "reading catalog"},
	})
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	runCliTests(t, cli, out, []cliTest{
		{name: "no user", args: []string{"token"}, wantErr: errHelp},
		{name: "blank user", args: []string{"token", "-user", "  "}, wantErr: errHelp},
	})

	require.NoError(t, cli.run([]string{"admin", "token", "-user", " u1 "}))
	token := strings.TrimSpace(out.String())
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3, "a signed JWT")

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims struct {
		Sub string `json:"sub"`
	}
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "u1", claims.Sub, "user id is trimmed")
}

var (
	origRunMigrations = runMigrationsFunc
	origTimeNow       = timeNow
)
