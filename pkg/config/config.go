package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App  AppConfig
	DB   DBConfig
	JWT  JWTConfig
	HTTP HTTPConfig
	SAT  SATConfig
}

// SATConfig configuración de la validación de CFDI contra la infraestructura del SAT (México).
type SATConfig struct {
	LocalCertDir   string        // Directorio con certificados <numero>.cer (vacío = sin almacén local)
	CacheDir       string        // Caché en disco de certificados descargados
	CertBaseURL    string        // Repositorio público de certificados (rdc.sat.gob.mx/rccf)
	ConnectTimeout time.Duration // Timeout de conexión a la red del SAT
	FetchTimeout   time.Duration // Timeout total de la descarga
	CacheMaxAge    time.Duration // 0 = los certificados en caché nunca se refrescan
	FetchRate      int           // Descargas por segundo al repositorio (0 = sin límite)
	FetchBurst     int
	TrustBundle    string        // PEM con certificados raíz/intermedios del SAT
	OCSPURL        string        // Respondedor OCSP (vacío = sin consulta de revocación)
	StatusURL      string        // Servicio ConsultaCFDIService
	StatusTimeout  time.Duration
	StrictRFC      bool // Exige dígito verificador válido en los RFC
	RequireStamp   bool // Rechaza comprobantes sin Timbre Fiscal Digital
	Workers        int  // Documentos validados en paralelo en lotes
	MaxBatch       int  // Documentos admitidos por petición de lote
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
// Si DatabaseURL y Host están vacíos, el servicio no persiste reportes.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// Enabled indica si hay una base de datos configurada.
func (c DBConfig) Enabled() bool {
	return c.DatabaseURL != "" || c.Host != ""
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, JWT_SECRET, SAT_CACHE_DIR, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	// Una variable vacía desactiva el componente (SAT_STATUS_URL, SAT_TRUST_BUNDLE).
	v.AllowEmptyEnv(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return FromViper(v)
}

// FromViper construye la configuración a partir de una instancia de Viper ya poblada.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "cfdi-validator"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", ""),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "cfdi_validator"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "cfdi-validator"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SAT: SATConfig{
			LocalCertDir:   getString(v, "SAT_LOCAL_CERT_DIR", ""),
			CacheDir:       getString(v, "SAT_CACHE_DIR", filepath.Join(os.TempDir(), "cfdi-sat-certificates")),
			CertBaseURL:    getString(v, "SAT_CERT_BASE_URL", "https://rdc.sat.gob.mx/rccf"),
			ConnectTimeout: getDuration(v, "SAT_CONNECT_TIMEOUT", 5*time.Second),
			FetchTimeout:   getDuration(v, "SAT_FETCH_TIMEOUT", 10*time.Second),
			CacheMaxAge:    getDuration(v, "SAT_CACHE_MAX_AGE", 0),
			FetchRate:      getInt(v, "SAT_FETCH_RATE", 5),
			FetchBurst:     getInt(v, "SAT_FETCH_BURST", 10),
			TrustBundle:    getString(v, "SAT_TRUST_BUNDLE", ""),
			OCSPURL:        getString(v, "SAT_OCSP_URL", ""),
			StatusURL:      getString(v, "SAT_STATUS_URL", "https://consultaqr.facturaelectronica.sat.gob.mx/ConsultaCFDIService.svc"),
			StatusTimeout:  getDuration(v, "SAT_STATUS_TIMEOUT", 30*time.Second),
			StrictRFC:      getBool(v, "SAT_STRICT_RFC", false),
			RequireStamp:   getBool(v, "SAT_REQUIRE_STAMP", false),
			Workers:        getInt(v, "VALIDATION_WORKERS", 4),
			MaxBatch:       getInt(v, "VALIDATION_MAX_BATCH", 100),
		},
	}

	if cfg.SAT.FetchTimeout < cfg.SAT.ConnectTimeout {
		return nil, fmt.Errorf("config: SAT_FETCH_TIMEOUT (%s) menor que SAT_CONNECT_TIMEOUT (%s)", cfg.SAT.FetchTimeout, cfg.SAT.ConnectTimeout)
	}
	if cfg.SAT.Workers < 1 {
		cfg.SAT.Workers = 1
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

// getDuration acepta "10s", "5m" o un entero (segundos).
func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	raw := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return def
	}
	return b
}
