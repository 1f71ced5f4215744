package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server       ServerConfig
		Database     DatabaseConfig
		Achievements AchievementsConfig
	}

	ServerConfig struct {
		Host               string
		Port               int
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AchievementsConfig struct {
		CatalogPath       string        // empty: embedded default catalog
		StaggerInterval   time.Duration // delay between two presentations of a batch
		AutoDismissAfter  time.Duration // tier 1 & 2 toasts
		PollInterval      time.Duration // advertised to polling clients
		GoldParticles     int
		PlatinumParticles int
		SweepInterval     time.Duration // 0 disables the sweeper
		DefaultSeason     string
	}
)

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration from the environment (and config/.env.<env> when it exists).
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Podium")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "x9#kq2-pl0w$+77=ed&uoxh2(t!m)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", 8000)
	conf.SetDefault("serverDebugHost", "0.0.0.0:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("disableReqLogs", false)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbName", "podium")
	conf.SetDefault("dbUser", "podium")
	conf.SetDefault("dbPassword", "podium")
	conf.SetDefault("dbAdminUser", "postgres")
	conf.SetDefault("dbAdminPassword", "postgres")
	conf.SetDefault("dbDisableTLS", true)

	conf.SetDefault("achievementsCatalogPath", "")
	conf.SetDefault("achievementsStaggerInterval", time.Second)
	conf.SetDefault("achievementsAutoDismissAfter", 5*time.Second)
	conf.SetDefault("achievementsPollInterval", 30*time.Second)
	conf.SetDefault("achievementsGoldParticles", 100)
	conf.SetDefault("achievementsPlatinumParticles", 200)
	conf.SetDefault("achievementsSweepInterval", 5*time.Minute)
	conf.SetDefault("achievementsDefaultSeason", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:      conf.GetString("appName"),
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Host:               conf.GetString("serverHost"),
			Port:               conf.GetInt("serverPort"),
			DebugHost:          conf.GetString("serverDebugHost"),
			ShutdownTimeout:    conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("jwtExpirationDelta"),
			DisableReqLogs:     conf.GetBool("disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetInt("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Achievements: AchievementsConfig{
			CatalogPath:       conf.GetString("achievementsCatalogPath"),
			StaggerInterval:   conf.GetDuration("achievementsStaggerInterval"),
			AutoDismissAfter:  conf.GetDuration("achievementsAutoDismissAfter"),
			PollInterval:      conf.GetDuration("achievementsPollInterval"),
			GoldParticles:     conf.GetInt("achievementsGoldParticles"),
			PlatinumParticles: conf.GetInt("achievementsPlatinumParticles"),
			SweepInterval:     conf.GetDuration("achievementsSweepInterval"),
			DefaultSeason:     conf.GetString("achievementsDefaultSeason"),
		},
	}
}
