package app

import (
	"strings"

	"github.com/charlesng35/teacherrate/internal/database"
)

// ConnectionConfig converts DatabaseConfig into the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(c.Postgres.Host)
		dbCfg.Port = c.Postgres.Port
		dbCfg.Name = strings.TrimSpace(c.Postgres.Database)
		dbCfg.User = strings.TrimSpace(c.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(c.Postgres.Password)
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(c.MySQL.Host)
		dbCfg.Port = c.MySQL.Port
		dbCfg.Name = strings.TrimSpace(c.MySQL.Database)
		dbCfg.User = strings.TrimSpace(c.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(c.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

// DatabaseSeed converts SeedConfig into start-up seed data. The administrator
// is only seeded when both an email and a password are configured.
func (c SeedConfig) DatabaseSeed() database.SeedConfig {
	var seed database.SeedConfig

	email := strings.TrimSpace(c.AdminEmail)
	if email != "" && c.AdminPassword != "" {
		seed.Admin = &database.AdminSeed{
			Name:     strings.TrimSpace(c.AdminName),
			Email:    email,
			Password: c.AdminPassword,
		}
	}
	if c.DemoTeachers {
		seed.Teachers = database.DemoTeachers()
	}
	return seed
}
