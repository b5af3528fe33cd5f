package core

import (
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address        string
		Host           string
		DisableReqLogs bool
	}

	BackendConfig struct {
		BaseURL  string
		Token    string
		Timeout  time.Duration
		SpoofPut bool // send multipart updates as POST + _method=PUT
		JSONWire bool // use the JSON encoder instead of the form encoder
		Lookup   bool // re-hydrate selected records through lookup-by-id
	}

	SearchConfig struct {
		Debounce         time.Duration
		AutoSelectSingle bool
		Rank             bool
	}

	DraftsConfig struct {
		Driver string // memory | file | postgres
		Dir    string
	}

	DatabaseConfig struct {
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

	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		WorkDir          string
		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Backend  BackendConfig
		Search   SearchConfig
		Drafts   DraftsConfig
		Database DatabaseConfig
	}
)

func (c DatabaseConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return c.Host + ":" + c.Port
}

func (c *Config) FromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}

// NewConfig reads the configuration from the environment.
// ENV selects the env prefix (DEV by default) and the optional config/.env.<env> file.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Shule")
	v.SetDefault("build", "dev")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverDisableReqLogs", false)
	v.SetDefault("backendBaseURL", "http://localhost:8080/api")
	v.SetDefault("backendToken", "")
	v.SetDefault("backendTimeout", 30*time.Second)
	v.SetDefault("backendSpoofPut", true)
	v.SetDefault("backendJSONWire", false)
	v.SetDefault("backendLookup", true)
	v.SetDefault("searchDebounce", 300*time.Millisecond)
	v.SetDefault("searchAutoSelectSingle", false)
	v.SetDefault("searchRank", false)
	v.SetDefault("draftsDriver", "memory")
	v.SetDefault("draftsDir", filepath.Join(os.TempDir(), "shule-drafts"))
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "shule")
	v.SetDefault("dbUser", "shule")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		WorkDir:          wd,
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:        v.GetString("serverAddress"),
			Host:           v.GetString("serverHost"),
			DisableReqLogs: v.GetBool("serverDisableReqLogs"),
		},
		Backend: BackendConfig{
			BaseURL:  strings.TrimRight(v.GetString("backendBaseURL"), "/"),
			Token:    v.GetString("backendToken"),
			Timeout:  v.GetDuration("backendTimeout"),
			SpoofPut: v.GetBool("backendSpoofPut"),
			JSONWire: v.GetBool("backendJSONWire"),
			Lookup:   v.GetBool("backendLookup"),
		},
		Search: SearchConfig{
			Debounce:         v.GetDuration("searchDebounce"),
			AutoSelectSingle: v.GetBool("searchAutoSelectSingle"),
			Rank:             v.GetBool("searchRank"),
		},
		Drafts: DraftsConfig{
			Driver: strings.ToLower(v.GetString("draftsDriver")),
			Dir:    v.GetString("draftsDir"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
	}, nil
}
