package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Payment      PaymentConfig
	Carrier      CarrierConfig
	ERP          ERPConfig
	Shop         ShopConfig
	Admin        AdminConfig
	Checkout     CheckoutConfig
	Shipping     ShippingConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations envconfig cannot express with tags alone.
func (c *Config) Validate() error {
	if c.App.NodeID < 0 || c.App.NodeID > 1023 {
		return fmt.Errorf("ATELIE_APP_NODE_ID must be within [0, 1023]")
	}
	if c.Checkout.CardTTL <= 0 || c.Checkout.CardTTL > MaxCardTTL {
		return fmt.Errorf("%s must be within (0, %s]", EnvCheckoutCardTTL, MaxCardTTL)
	}
	if c.Checkout.PixDiscountPercent < 0 || c.Checkout.PixDiscountPercent >= 100 {
		return fmt.Errorf("%s must be within [0, 100)", EnvCheckoutPixDiscount)
	}
	switch c.Shipping.LabelTrigger {
	case LabelTriggerPayment, LabelTriggerInvoice:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvShippingLabelTrigger, LabelTriggerPayment, LabelTriggerInvoice)
	}
	if _, err := ParseSituationMap(c.ERP.SituationMap); err != nil {
		return fmt.Errorf("%s: %w", EnvERPSituationMap, err)
	}
	if _, err := ParseSituationMap(c.ERP.FiscalSituationMap); err != nil {
		return fmt.Errorf("%s: %w", EnvERPFiscalSituationMap, err)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"ATELIE_APP_ENV" required:"true"`
	Port         string `envconfig:"ATELIE_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"ATELIE_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"ATELIE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ATELIE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"ATELIE_CORS_ORIGINS" default:"http://localhost:3000"`
	// NodeID seeds the order code generator; replicas need distinct values.
	NodeID int64 `envconfig:"ATELIE_APP_NODE_ID" default:"1"`
	// WebhookDedupeTTL bounds how long processed webhook event ids are remembered.
	WebhookDedupeTTL time.Duration `envconfig:"ATELIE_WEBHOOK_DEDUPE_TTL" default:"72h"`
	// CheckoutRatePerMinute caps checkout attempts per client IP.
	CheckoutRatePerMinute int `envconfig:"ATELIE_CHECKOUT_RATE_PER_MINUTE" default:"10"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	return splitCSV(a.CORSOrigins)
}

type ServiceConfig struct {
	Kind string `envconfig:"ATELIE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"ATELIE_DB_DSN"`

	Host     string `envconfig:"ATELIE_DB_HOST"`
	Port     int    `envconfig:"ATELIE_DB_PORT" default:"5432"`
	User     string `envconfig:"ATELIE_DB_USER"`
	Password string `envconfig:"ATELIE_DB_PASSWORD"`
	Name     string `envconfig:"ATELIE_DB_NAME"`
	SSLMode  string `envconfig:"ATELIE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ATELIE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ATELIE_DB_MAX_IDLE_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `envconfig:"ATELIE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ATELIE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ATELIE_REDIS_URL"`
	Address      string        `envconfig:"ATELIE_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"ATELIE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ATELIE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ATELIE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ATELIE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ATELIE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ATELIE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ATELIE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type PaymentConfig struct {
	BaseURL         string        `envconfig:"ATELIE_PAYMENT_BASE_URL" default:"https://sandbox.api.pagseguro.com"`
	Token           string        `envconfig:"ATELIE_PAYMENT_TOKEN" required:"true"`
	WebhookSecret   string        `envconfig:"ATELIE_PAYMENT_WEBHOOK_SECRET" required:"true"`
	NotificationURL string        `envconfig:"ATELIE_PAYMENT_NOTIFICATION_URL"`
	Timeout         time.Duration `envconfig:"ATELIE_PAYMENT_TIMEOUT" default:"30s"`
	PixExpiry       time.Duration `envconfig:"ATELIE_PAYMENT_PIX_EXPIRY" default:"30m"`
	BoletoDueDays   int           `envconfig:"ATELIE_PAYMENT_BOLETO_DUE_DAYS" default:"3"`
	MaxInstallments int           `envconfig:"ATELIE_PAYMENT_MAX_INSTALLMENTS" default:"6"`
	SoftDescriptor  string        `envconfig:"ATELIE_PAYMENT_SOFT_DESCRIPTOR" default:"ATELIE"`
}

type CarrierConfig struct {
	BaseURL      string        `envconfig:"ATELIE_CARRIER_BASE_URL" default:"https://sandbox.melhorenvio.com.br"`
	Token        string        `envconfig:"ATELIE_CARRIER_TOKEN" required:"true"`
	UserAgent    string        `envconfig:"ATELIE_CARRIER_USER_AGENT" default:"atelie-backend (contato@atelie.com.br)"`
	Timeout      time.Duration `envconfig:"ATELIE_CARRIER_TIMEOUT" default:"30s"`
	PrintTimeout time.Duration `envconfig:"ATELIE_CARRIER_PRINT_TIMEOUT" default:"60s"`
}

type ERPConfig struct {
	BaseURL            string        `envconfig:"ATELIE_ERP_BASE_URL" default:"https://api.bling.com.br/Api/v3"`
	AuthURL            string        `envconfig:"ATELIE_ERP_AUTH_URL" default:"https://www.bling.com.br/Api/v3/oauth/authorize"`
	TokenURL           string        `envconfig:"ATELIE_ERP_TOKEN_URL" default:"https://www.bling.com.br/Api/v3/oauth/token"`
	ClientID           string        `envconfig:"ATELIE_ERP_CLIENT_ID"`
	ClientSecret       string        `envconfig:"ATELIE_ERP_CLIENT_SECRET"`
	RedirectURI        string        `envconfig:"ATELIE_ERP_REDIRECT_URI"`
	WebhookSecret      string        `envconfig:"ATELIE_ERP_WEBHOOK_SECRET"`
	Timeout            time.Duration `envconfig:"ATELIE_ERP_TIMEOUT" default:"30s"`
	RequestsPerSecond  float64       `envconfig:"ATELIE_ERP_RPS" default:"3"`
	FiscalPollAttempts int           `envconfig:"ATELIE_ERP_FISCAL_POLL_ATTEMPTS" default:"5"`
	FiscalPollInterval time.Duration `envconfig:"ATELIE_ERP_FISCAL_POLL_INTERVAL" default:"3s"`
	NatureOperationID  int64         `envconfig:"ATELIE_ERP_NATURE_OPERATION_ID"`
	// SituationMap is "situationID:order_status" pairs separated by commas.
	// An empty status ("15:") maps the situation to no local effect.
	SituationMap string `envconfig:"ATELIE_ERP_SITUATION_MAP" default:"6:awaiting_payment,9:processing_shipment,15:,12:cancelled_by_seller"`
	// FiscalSituationMap maps fiscal-document situation ids to emission statuses.
	FiscalSituationMap string `envconfig:"ATELIE_ERP_FISCAL_SITUATION_MAP" default:"1:pending,2:cancelled,3:processing,4:error,5:issued,6:issued,7:processing,8:error,9:processing"`
}

// Enabled reports whether OAuth client credentials are configured.
func (e ERPConfig) Enabled() bool {
	return e.ClientID != "" && e.ClientSecret != ""
}

// SigningSecret is the key for webhook HMACs; the ERP signs with the client
// secret unless a dedicated one is configured.
func (e ERPConfig) SigningSecret() string {
	if e.WebhookSecret != "" {
		return e.WebhookSecret
	}
	return e.ClientSecret
}

type ShopConfig struct {
	LegalName         string `envconfig:"ATELIE_SHOP_LEGAL_NAME" required:"true"`
	CNPJ              string `envconfig:"ATELIE_SHOP_CNPJ" required:"true"`
	StateRegistration string `envconfig:"ATELIE_SHOP_STATE_REGISTRATION"`
	Email             string `envconfig:"ATELIE_SHOP_EMAIL"`
	Phone             string `envconfig:"ATELIE_SHOP_PHONE"`
	OriginCEP         string `envconfig:"ATELIE_SHOP_ORIGIN_CEP" required:"true"`
	Street            string `envconfig:"ATELIE_SHOP_STREET"`
	Number            string `envconfig:"ATELIE_SHOP_NUMBER"`
	Complement        string `envconfig:"ATELIE_SHOP_COMPLEMENT"`
	District          string `envconfig:"ATELIE_SHOP_DISTRICT"`
	City              string `envconfig:"ATELIE_SHOP_CITY"`
	State             string `envconfig:"ATELIE_SHOP_STATE"`
}

type AdminConfig struct {
	Emails    string        `envconfig:"ATELIE_ADMIN_EMAILS"`
	JWTSecret string        `envconfig:"ATELIE_ADMIN_JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"ATELIE_ADMIN_JWT_ISSUER" default:"atelie-admin"`
	TokenTTL  time.Duration `envconfig:"ATELIE_ADMIN_TOKEN_TTL" default:"12h"`
}

// Allowlist returns the normalized admin emails.
func (a AdminConfig) Allowlist() map[string]struct{} {
	out := map[string]struct{}{}
	for _, email := range splitCSV(a.Emails) {
		out[strings.ToLower(email)] = struct{}{}
	}
	return out
}

type CheckoutConfig struct {
	PixDiscountPercent float64       `envconfig:"ATELIE_CHECKOUT_PIX_DISCOUNT_PERCENT" default:"0"`
	VerifyFreightQuote bool          `envconfig:"ATELIE_CHECKOUT_VERIFY_FREIGHT" default:"true"`
	CardTTL            time.Duration `envconfig:"ATELIE_CHECKOUT_CARD_TTL" default:"10m"`
}

type ShippingConfig struct {
	LabelTrigger      string  `envconfig:"ATELIE_SHIPPING_LABEL_TRIGGER" default:"payment"`
	DefaultItemWeight float64 `envconfig:"ATELIE_SHIPPING_DEFAULT_ITEM_WEIGHT_KG" default:"0.5"`
	MinimumWeight     float64 `envconfig:"ATELIE_SHIPPING_MIN_WEIGHT_KG" default:"0.3"`
	// CarrierCNPJs is "company name:cnpj" pairs used to register carriers as ERP contacts.
	CarrierCNPJs string `envconfig:"ATELIE_SHIPPING_CARRIER_CNPJS" default:"Correios:34028316000103,Jadlog:04884082000135"`
}

// CarrierDocuments returns carrier CNPJs keyed by lowercase company name.
func (s ShippingConfig) CarrierDocuments() map[string]string {
	out := map[string]string{}
	for _, pair := range splitCSV(s.CarrierCNPJs) {
		name, doc, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(doc)
	}
	return out
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ATELIE_OUTBOX_BATCH_SIZE" default:"25"`
	PollIntervalMS int `envconfig:"ATELIE_OUTBOX_POLL_INTERVAL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"ATELIE_OUTBOX_MAX_ATTEMPTS" default:"8"`
	// Lease is how long a claimed row stays invisible to other dispatchers.
	Lease          time.Duration `envconfig:"ATELIE_OUTBOX_LEASE" default:"2m"`
	HandlerTimeout time.Duration `envconfig:"ATELIE_OUTBOX_HANDLER_TIMEOUT" default:"90s"`
	RetryBase      time.Duration `envconfig:"ATELIE_OUTBOX_RETRY_BASE" default:"10s"`
	RetryMax       time.Duration `envconfig:"ATELIE_OUTBOX_RETRY_MAX" default:"30m"`
	ReauthDelay    time.Duration `envconfig:"ATELIE_OUTBOX_REAUTH_DELAY" default:"15m"`
	Retention      time.Duration `envconfig:"ATELIE_OUTBOX_RETENTION" default:"168h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ATELIE_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"ATELIE_CRON_LOCK_TTL" default:"4m"`
	// OrphanAfter is how long a CREATED order may wait for its payment row.
	OrphanAfter    time.Duration `envconfig:"ATELIE_CRON_ORPHAN_AFTER" default:"15m"`
	ReconcileAfter time.Duration `envconfig:"ATELIE_CRON_RECONCILE_AFTER" default:"30m"`
	BatchSize      int           `envconfig:"ATELIE_CRON_BATCH_SIZE" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ATELIE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
