package core

import (
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type (
	Config struct {
		AppName          string `mapstructure:"appName"`
		Env              string `mapstructure:"env"`
		Build            string `mapstructure:"build"`
		Debug            bool   `mapstructure:"debug"`
		TestMode         bool   `mapstructure:"testMode"`
		SecretKey        string `mapstructure:"secretKey"`
		RollbarToken     string `mapstructure:"rollbarToken"`
		SendgridApiKey   string `mapstructure:"sendgridApiKey"`
		FromEmail        string `mapstructure:"defaultFromEmail"`
		FrontendBaseURL  string `mapstructure:"frontendBaseURL"`
		Timezone         string `mapstructure:"timezone"`
		WorkDir          string `mapstructure:"-"`
		Server           ServerConfig
		Store            StoreConfig
		Database         DatabaseConfig
		Redis            RedisConfig
		Attendance       AttendanceConfig
		Billing          BillingConfig
	}

	ServerConfig struct {
		Address            string        `mapstructure:"address"`
		DebugHost          string        `mapstructure:"debugHost"`
		Host               string        `mapstructure:"host"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdownTimeout"`
		JWTExpirationDelta time.Duration `mapstructure:"jwtExpirationDelta"`
		IdleTimeout        time.Duration `mapstructure:"idleTimeout"`
		DisableReqLogs     bool          `mapstructure:"disableReqLogs"`
	}

	StoreConfig struct {
		Backend string `mapstructure:"backend"`
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"`
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminUser"`
		AdminPassword string `mapstructure:"adminPassword"`
		Name          string `mapstructure:"name"`
		DisableTLS    bool   `mapstructure:"disableTLS"`
	}

	RedisConfig struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	AttendanceConfig struct {
		// Policy is either "upsert" (one record per student, date & category) or "append" (keep re-takes).
		Policy string `mapstructure:"policy"`
	}

	BillingConfig struct {
		ReceiptPrefix     string `mapstructure:"receiptPrefix"`
		SalaryCron        string `mapstructure:"salaryCron"`
		SalaryCronEnabled bool   `mapstructure:"salaryCronEnabled"`
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + strconv.Itoa(db.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.FromEmail}
}

// Location returns the institute time zone used to decide what "today" means.
func (conf *Config) Location() *time.Location {
	if conf.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "SportsHub")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "x7#kq2-p!vd9$m&3zt@8w^ne5rb+4hc(j0g)f1ys*6ua")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("timezone", "Asia/Kolkata")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.idleTimeout", 5*time.Minute)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("store.backend", StoreMemory)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sportshub")
	v.SetDefault("database.password", "sportshub")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "sportshub")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("attendance.policy", "upsert")

	v.SetDefault("billing.receiptPrefix", "TRN")
	v.SetDefault("billing.salaryCron", "0 1 1 * *") // 01:00 on the 1st, for the month just closed
	v.SetDefault("billing.salaryCronEnabled", false)
}

// NewConfig loads the configuration for the current ENV (DEV by default, TEST, QA, PROD).
// Values come from defaults, then `config/.env.<env>` if present, then prefixed env vars (eg. PROD_SECRETKEY).
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
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

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}
	conf.Env = env
	conf.WorkDir = wd
	return conf, nil
}

// NewTestConfig returns the defaults with test mode on and the in-memory store.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	v.Set("server.disableReqLogs", true)

	conf := new(Config)
	_ = v.Unmarshal(conf)
	conf.Env = "TEST"
	return conf
}
