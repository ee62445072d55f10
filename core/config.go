package core

import (
	"fmt"
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
	AppName          string
	Env              string // DEV (local; default), TEST, QA, PROD
	Build            string
	Debug            bool
	TestMode         bool
	WorkDir          string
	SecretKey        string
	FrontendBaseURL  string
	JoinPath         string
	SupportContact   string
	SendgridAPIKey   string
	RollbarToken     string
	defaultFromEmail string

	Server struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	Database DatabaseConfig

	Auth struct {
		PasswordResetTimeoutDelta time.Duration
		RequireEmailConfirmation  bool
		SessionLifetime           time.Duration
		InvitationTTL             time.Duration
	}

	Tenant struct {
		TrialDays int
	}

	Storage struct {
		Dir           string
		PublicBaseURL string
	}

	Redis struct {
		URL string
	}

	RateLimit struct {
		Login  string // ulule/limiter formatted rate, e.g. "10-M"
		Public string
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// InvitationLink returns the activation link embedded in invitation emails.
func (c *Config) InvitationLink(token string) string {
	return strings.TrimRight(c.FrontendBaseURL, "/") + "/" + strings.Trim(c.JoinPath, "/") + "/" + token
}

func (c *Config) setDefaultFromEmail(addr string) {
	c.defaultFromEmail = addr
}

type DatabaseConfig struct {
	Engine        string
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	AdminUser     string
	AdminPassword string
	DisableTLS    bool
}

func (dc DatabaseConfig) Address() string {
	return dc.Host + ":" + dc.Port
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the current env: `DEV_DATABASE_HOST`, `PROD_SECRETKEY`...
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Sama École")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "t8#k2m@qv!w9z$c4-x7p&n3r*b6y(h1j)f5d0g=s")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("joinPath", "rejoindre")
	v.SetDefault("supportContact", "support@samaecole.sn")
	v.SetDefault("sendgridAPIKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("defaultFromEmail", "Sama École <noreply@samaecole.sn>")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "samaecole")
	v.SetDefault("database.user", "samaecole")
	v.SetDefault("database.password", "samaecole")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("auth.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("auth.requireEmailConfirmation", false)
	v.SetDefault("auth.sessionLifetime", 30*24*time.Hour)
	v.SetDefault("auth.invitationTTL", 7*24*time.Hour)

	v.SetDefault("tenant.trialDays", 30)

	v.SetDefault("storage.dir", "var/files")
	v.SetDefault("storage.publicBaseURL", "http://localhost:8000/files")

	v.SetDefault("redis.url", "")

	v.SetDefault("rateLimit.login", "10-M")
	v.SetDefault("rateLimit.public", "30-M")

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

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		WorkDir:         workDir,
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		JoinPath:        v.GetString("joinPath"),
		SupportContact:  v.GetString("supportContact"),
		SendgridAPIKey:  v.GetString("sendgridAPIKey"),
		RollbarToken:    v.GetString("rollbarToken"),
	}
	conf.setDefaultFromEmail(v.GetString("defaultFromEmail"))

	conf.Server.Host = v.GetString("server.host")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.Auth.PasswordResetTimeoutDelta = v.GetDuration("auth.passwordResetTimeoutDelta")
	conf.Auth.RequireEmailConfirmation = v.GetBool("auth.requireEmailConfirmation")
	conf.Auth.SessionLifetime = v.GetDuration("auth.sessionLifetime")
	conf.Auth.InvitationTTL = v.GetDuration("auth.invitationTTL")

	conf.Tenant.TrialDays = v.GetInt("tenant.trialDays")

	conf.Storage.Dir = v.GetString("storage.dir")
	if !filepath.IsAbs(conf.Storage.Dir) {
		conf.Storage.Dir = filepath.Join(workDir, conf.Storage.Dir)
	}
	conf.Storage.PublicBaseURL = v.GetString("storage.publicBaseURL")

	conf.Redis.URL = v.GetString("redis.url")

	conf.RateLimit.Login = v.GetString("rateLimit.login")
	conf.RateLimit.Public = v.GetString("rateLimit.public")

	return conf
}

// NewTestConfig returns the configuration used by tests: no external services, deterministic secrets.
func NewTestConfig() *Config {
	conf := &Config{
		AppName:         "Sama École",
		Env:             "TEST",
		Build:           "test",
		TestMode:        true,
		SecretKey:       "test-secret-key",
		FrontendBaseURL: "http://localhost:3000",
		JoinPath:        "rejoindre",
		SupportContact:  "support@samaecole.sn",
	}
	conf.setDefaultFromEmail("Sama École <noreply@samaecole.sn>")
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Server.ShutdownTimeout = time.Second
	conf.Auth.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	conf.Auth.SessionLifetime = 24 * time.Hour
	conf.Auth.InvitationTTL = 7 * 24 * time.Hour
	conf.Tenant.TrialDays = 30
	conf.Storage.PublicBaseURL = "http://localhost:8000/files"
	conf.RateLimit.Login = "1000-M"
	conf.RateLimit.Public = "1000-M"
	return conf
}

// Getwd finds the project root: the closest parent directory holding a go.mod.
// `go test` runs from the package directory, so the plain working directory is not enough.
// Falls back to the working directory when no go.mod is found (deployed binaries).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
