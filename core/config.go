package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug    bool
	TestMode bool
	Env      string // DEV (default), TEST, QA, PROD
	Build    string
	AppName  string

	DefaultFromEmail string
	FrontendBaseURL  string
	SendgridApiKey   string
	RollbarToken     string

	Server struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	Database struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	// Engine holds the progression engine tunables.
	Engine struct {
		PassingScore        float64
		SuspensionThreshold int
		RetakeLimit         int
		DefaultMaxAttempts  int
		ConflictRetries     int
		ReleaseSweepSpec    string // cron spec for the release-gate sweep
	}
}

func (conf *Config) DefaultFromAddress() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.DefaultFromEmail}
}

func (conf *Config) DatabaseAddress() string {
	return conf.Database.Host + ":" + conf.Database.Port
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Darasa")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", "localhost:8000")
	v.SetDefault("server.debugHost", "localhost:9000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("engine.passingScore", 80.0)
	v.SetDefault("engine.suspensionThreshold", 2)
	v.SetDefault("engine.retakeLimit", 2)
	v.SetDefault("engine.defaultMaxAttempts", 3)
	v.SetDefault("engine.conflictRetries", 3)
	v.SetDefault("engine.releaseSweepSpec", "0 0 * * *") // daily at midnight

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.Debug = v.GetBool("debug")
	conf.TestMode = env == "TEST"
	conf.Build = v.GetString("build")
	conf.AppName = v.GetString("appName")
	conf.DefaultFromEmail = v.GetString("defaultFromEmail")
	conf.FrontendBaseURL = v.GetString("frontendBaseURL")
	conf.SendgridApiKey = v.GetString("sendgridApiKey")
	conf.RollbarToken = v.GetString("rollbarToken")

	conf.Server.Host = v.GetString("server.host")
	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.Engine.PassingScore = v.GetFloat64("engine.passingScore")
	conf.Engine.SuspensionThreshold = v.GetInt("engine.suspensionThreshold")
	conf.Engine.RetakeLimit = v.GetInt("engine.retakeLimit")
	conf.Engine.DefaultMaxAttempts = v.GetInt("engine.defaultMaxAttempts")
	conf.Engine.ConflictRetries = v.GetInt("engine.conflictRetries")
	conf.Engine.ReleaseSweepSpec = v.GetString("engine.releaseSweepSpec")

	if conf.Engine.PassingScore <= 0 || conf.Engine.PassingScore > 100 {
		log.Fatalf("config: invalid engine.passingScore %v", conf.Engine.PassingScore)
	}
	return conf
}

// NewTestConfig returns a Config with engine defaults and no env lookups; for unit tests.
func NewTestConfig() *Config {
	conf := new(Config)
	conf.Env = "TEST"
	conf.Debug = true
	conf.TestMode = true
	conf.AppName = "Darasa"
	conf.DefaultFromEmail = "noreply@test.test"
	conf.FrontendBaseURL = "http://localhost:8080"
	conf.Engine.PassingScore = 80.0
	conf.Engine.SuspensionThreshold = 2
	conf.Engine.RetakeLimit = 2
	conf.Engine.DefaultMaxAttempts = 3
	conf.Engine.ConflictRetries = 3
	conf.Engine.ReleaseSweepSpec = "0 0 * * *"
	return conf
}
