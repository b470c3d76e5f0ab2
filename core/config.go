package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env   string // DEV (default), TEST, QA, PROD
		Build string

		Debug    bool
		TestMode bool

		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridApiKey            string
		DefaultFromEmailAddr      string
		ReplyToEmailAddr          string // HR mailbox answering the onboardees' replies
		PasswordResetTimeoutDelta time.Duration
		WorkDir                   string

		Server     ServerConfig
		Database   DatabaseConfig
		ChangeFeed ChangeFeedConfig
		Jobs       JobsConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ChangeFeedConfig struct {
		Driver    string // postgres | redis | memory
		Channel   string
		RedisAddr string
		RedisDB   int
	}

	JobsConfig struct {
		Disabled        bool
		RebalanceSpec   string
		MinOrderKeyGap  float64
		ReminderSpec    string
		ReminderWindow  time.Duration
		ReminderTimeout time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmailAddr)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.DefaultFromEmailAddr}
	}
	return *addr
}

// ReplyToEmail returns the address replies should go to, if one is configured.
func (c *Config) ReplyToEmail() (mail.Address, bool) {
	if c.ReplyToEmailAddr == "" {
		return mail.Address{}, false
	}
	addr, err := mail.ParseAddress(c.ReplyToEmailAddr)
	if err != nil {
		return mail.Address{Address: c.ReplyToEmailAddr}, true
	}
	return *addr, true
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "FirstStep")
	v.SetDefault("secretKey", "8z!x3c#v$q2k=fp+t7o)wl5(n&h_m9e^r6y*sd4bj@ug1ia0")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmailAddr", "FirstStep <noreply@localhost>")
	v.SetDefault("replyToEmailAddr", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "firststep")
	v.SetDefault("database.user", "firststep")
	v.SetDefault("database.password", "firststep")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("changeFeed.driver", "postgres")
	v.SetDefault("changeFeed.channel", "firststep_changes")
	v.SetDefault("changeFeed.redisAddr", "localhost:6379")
	v.SetDefault("changeFeed.redisDB", 0)

	v.SetDefault("jobs.disabled", false)
	v.SetDefault("jobs.rebalanceSpec", "@daily")
	v.SetDefault("jobs.minOrderKeyGap", 1e-6)
	v.SetDefault("jobs.reminderSpec", "0 8 * * *")
	v.SetDefault("jobs.reminderWindow", 3*24*time.Hour)
	v.SetDefault("jobs.reminderTimeout", time.Minute)
}

// NewConfig loads the configuration of the current ENV.
// Values come from, in order of precedence: env vars prefixed with ENV (eg: `PROD_DATABASE_HOST`),
// config/.env.<env> and the defaults above.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "memory")
		v.SetDefault("changeFeed.driver", "memory")
		v.SetDefault("jobs.disabled", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	v.SetDefault("workDir", wd)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{Env: env}
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal(): %v", err)
	}
	conf.Env = env
	return conf
}

// NewTestConfig returns a Config suitable for tests: in-memory storage and change feed, no jobs.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal(): %v", err)
	}
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.Database.Engine = "memory"
	conf.ChangeFeed.Driver = "memory"
	conf.Jobs.Disabled = true
	conf.Server.DisableReqLogs = true
	return conf
}
