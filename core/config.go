package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Penalty policies
const (
	PenaltyPolicyWeekly = "weekly"
	PenaltyPolicyDaily  = "daily"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server      ServerConfig
		Database    DatabaseConfig
		Maintenance MaintenanceConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		AllowedOrigins  []string
		DisableReqLogs  bool

		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | mongodb | inmem
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		MongoURI      string
	}

	MaintenanceConfig struct {
		BaseAmount    decimal.Decimal
		GraceDay      int
		CreationDay   int
		PenaltyPolicy string
		PenaltyRate   decimal.Decimal
		PenaltyPeriod int // days
		DailyPenalty  decimal.Decimal
		TimeZone      string
		Location      *time.Location
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "EntryKart")
	v.SetDefault("secretKey", "k2!n7-vq0@3dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "entrykart")
	v.SetDefault("database.password", "entrykart")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "entrykart")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.mongoURI", "mongodb://localhost:27017")

	v.SetDefault("maintenance.baseAmount", "1000")
	v.SetDefault("maintenance.graceDay", 10)
	v.SetDefault("maintenance.creationDay", 25)
	v.SetDefault("maintenance.penaltyPolicy", PenaltyPolicyWeekly)
	v.SetDefault("maintenance.penaltyRate", "0.10")
	v.SetDefault("maintenance.penaltyPeriod", 7)
	v.SetDefault("maintenance.dailyPenalty", "10")
	v.SetDefault("maintenance.timeZone", "UTC")
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Env vars are prefixed by the upper-cased ENV and nested keys use underscores, eg: DEV_DATABASE_HOST.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

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

	conf := &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			AllowedOrigins:  v.GetStringSlice("server.allowedOrigins"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),

			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MongoURI:      v.GetString("database.mongoURI"),
		},
		Maintenance: MaintenanceConfig{
			GraceDay:      v.GetInt("maintenance.graceDay"),
			CreationDay:   v.GetInt("maintenance.creationDay"),
			PenaltyPolicy: strings.ToLower(v.GetString("maintenance.penaltyPolicy")),
			PenaltyPeriod: v.GetInt("maintenance.penaltyPeriod"),
			TimeZone:      v.GetString("maintenance.timeZone"),
		},
	}

	var err error
	mc := &conf.Maintenance
	if mc.BaseAmount, err = decimal.NewFromString(v.GetString("maintenance.baseAmount")); err != nil {
		return nil, errors.Wrap(err, "parsing maintenance.baseAmount")
	}
	if mc.PenaltyRate, err = decimal.NewFromString(v.GetString("maintenance.penaltyRate")); err != nil {
		return nil, errors.Wrap(err, "parsing maintenance.penaltyRate")
	}
	if mc.DailyPenalty, err = decimal.NewFromString(v.GetString("maintenance.dailyPenalty")); err != nil {
		return nil, errors.Wrap(err, "parsing maintenance.dailyPenalty")
	}
	if mc.Location, err = time.LoadLocation(mc.TimeZone); err != nil {
		return nil, errors.Wrap(err, "loading maintenance.timeZone")
	}
	if err = mc.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks that the billing settings are usable.
func (mc MaintenanceConfig) Validate() error {
	switch {
	case !mc.BaseAmount.IsPositive():
		return errors.New("maintenance.baseAmount must be positive")
	case mc.GraceDay < 1 || mc.GraceDay > 28:
		return fmt.Errorf("maintenance.graceDay must be within 1..28 (got %d)", mc.GraceDay)
	case mc.CreationDay < 1 || mc.CreationDay > 31:
		return fmt.Errorf("maintenance.creationDay must be within 1..31 (got %d)", mc.CreationDay)
	case mc.PenaltyPeriod <= 0:
		return fmt.Errorf("maintenance.penaltyPeriod must be positive (got %d)", mc.PenaltyPeriod)
	case mc.PenaltyRate.IsNegative():
		return errors.New("maintenance.penaltyRate must not be negative")
	case mc.DailyPenalty.IsNegative():
		return errors.New("maintenance.dailyPenalty must not be negative")
	}
	switch mc.PenaltyPolicy {
	case PenaltyPolicyWeekly, PenaltyPolicyDaily:
	default:
		return fmt.Errorf("maintenance.penaltyPolicy: unknown policy %q", mc.PenaltyPolicy)
	}
	return nil
}

// NewTestConfig returns the default configuration without reading the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		AppName:   "EntryKart",
		SecretKey: "secret",
		Server: ServerConfig{
			Host:            "localhost",
			ShutdownTimeout: time.Second,
			AllowedOrigins:  []string{"*"},
			DisableReqLogs:  true,

			JWTExpirationDelta: time.Hour,
		},
		Database: DatabaseConfig{Engine: "inmem"},
		Maintenance: MaintenanceConfig{
			BaseAmount:    decimal.NewFromInt(1000),
			GraceDay:      10,
			CreationDay:   25,
			PenaltyPolicy: PenaltyPolicyWeekly,
			PenaltyRate:   decimal.RequireFromString("0.10"),
			PenaltyPeriod: 7,
			DailyPenalty:  decimal.NewFromInt(10),
			TimeZone:      "UTC",
			Location:      time.UTC,
		},
	}
}
