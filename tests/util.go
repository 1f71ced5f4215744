package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	"github.com/trezcool/podium/fs"
	"github.com/trezcool/podium/storage/database"
)

type StatsWriter interface {
	SetUserStats(ctx context.Context, stats achievement.Stats) error
}

// NewConfig returns a configuration suited for tests: sqlite in memory, debug logs, fixed season.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "Podium",
		Env:       "TEST",
		Build:     "test",
		Debug:     true,
		TestMode:  true,
		SecretKey: "test-secret-key",
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
			DisableReqLogs:     true,
		},
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Name:   fmt.Sprintf("file:%s?mode=memory", uuid.NewString()),
		},
		Achievements: core.AchievementsConfig{
			StaggerInterval:   time.Second,
			AutoDismissAfter:  5 * time.Second,
			PollInterval:      30 * time.Second,
			GoldParticles:     100,
			PlatinumParticles: 200,
			DefaultSeason:     "2026-2027",
		},
	}
}

// OpenDB opens a migrated in-memory database, closed when the test ends.
func OpenDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	t.Helper()
	c := NewConfig()
	if len(conf) > 0 {
		c = conf[0]
	}
	db, err := database.Open(context.Background(), c)
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range []string{"user_achievements", "user_stats"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("ResetDB(): %v", err)
		}
	}
}

func SetStats(t *testing.T, w StatsWriter, stats achievement.Stats) achievement.Stats {
	t.Helper()
	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now().UTC()
	}
	if err := w.SetUserStats(context.Background(), stats); err != nil {
		t.Fatalf("SetStats(): %v", err)
	}
	return stats
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	return validate, translator
}

func LoadCatalog(t *testing.T, data string) *achievement.Catalog {
	t.Helper()
	validate, translator := NewValidator()
	cat, err := achievement.LoadCatalog([]byte(data), validate, translator)
	if err != nil {
		t.Fatalf("LoadCatalog(): %v", err)
	}
	return cat
}

func DefaultCatalog(t *testing.T) *achievement.Catalog {
	t.Helper()
	return LoadCatalog(t, string(appfs.DefaultCatalog))
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger keeps log entries in memory.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Entries(level ...string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if len(level) == 0 || e.Level == level[0] {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }
