package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventdesk/internal/mailer"
)

type ServerConfig struct {
	Port     string
	StaffKey string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{
		Port:     port,
		StaffKey: cfg.GetString("server.staff_key"),
	}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	host := cfg.GetString("database.host")
	port := cfg.GetString("database.port")
	user := cfg.GetString("database.user")
	password := cfg.GetString("database.password")
	name := cfg.GetString("database.name")

	if host == "" || port == "" || user == "" || name == "" {
		return "", nil, nil, fmt.Errorf("incomplete database configuration")
	}

	masterDSN := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, name,
	)

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("database.conn_max_lifetime_sec")) * time.Second,
	}

	log.Info().Str("host", host).Str("db", name).Msg("database configuration loaded")
	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" || rc.Exchange == "" || rc.Queue == "" {
		return RabbitConfig{}, fmt.Errorf("incomplete rabbit configuration")
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit configuration loaded")
	return rc, nil
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) (mailer.Config, error) {
	mc := mailer.Config{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetString("smtp.port"),
		From:     cfg.GetString("smtp.from"),
		Password: cfg.GetString("smtp.password"),
	}
	if mc.Host == "" || mc.Port == "" || mc.From == "" {
		return mailer.Config{}, fmt.Errorf("incomplete smtp configuration")
	}
	log.Info().Str("host", mc.Host).Str("from", mc.From).Msg("smtp configuration loaded")
	return mc, nil
}

// BuildScheduleLocation resolves the IANA zone all schedules are rendered in.
// Sessions are stored in UTC; this zone only affects day grouping and display.
func BuildScheduleLocation(cfg *config.Config, log *zerolog.Logger) (*time.Location, error) {
	name := cfg.GetString("schedule.timezone")
	if name == "" {
		log.Warn().Msg("schedule.timezone not set, defaulting to UTC")
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", name, err)
	}
	return loc, nil
}

func AutoApprove(cfg *config.Config) bool {
	return cfg.GetBool("registration.auto_approve")
}

func RollbackOnShutdown(cfg *config.Config) bool {
	return cfg.GetBool("database.rollback_on_shutdown")
}
