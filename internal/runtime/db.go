package runtime

import (
	"fmt"
	"net/url"

	"github.com/mohammad-safakhou/atlast/config"
)

// BuildPostgresDSN constructs a DSN from the postgres settings. An explicit url wins.
func BuildPostgresDSN(p config.PostgresConfig) (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     p.Host + ":" + port,
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": {ssl}}.Encode(),
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String(), nil
}
