package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const EnvPrefix = "ATELIE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	LabelTriggerPayment = "payment"
	LabelTriggerInvoice = "invoice"
)

// MaxCardTTL bounds how long card data may live in the vault.
const MaxCardTTL = 10 * time.Minute

const (
	EnvAppEnv                = "ATELIE_APP_ENV"
	EnvPort                  = "ATELIE_APP_PORT"
	EnvDBDSN                 = "ATELIE_DB_DSN"
	EnvDBHost                = "ATELIE_DB_HOST"
	EnvDBUser                = "ATELIE_DB_USER"
	EnvDBName                = "ATELIE_DB_NAME"
	EnvRedisURL              = "ATELIE_REDIS_URL"
	EnvPaymentToken          = "ATELIE_PAYMENT_TOKEN"
	EnvPaymentWebhookSecret  = "ATELIE_PAYMENT_WEBHOOK_SECRET"
	EnvCarrierToken          = "ATELIE_CARRIER_TOKEN"
	EnvERPClientID           = "ATELIE_ERP_CLIENT_ID"
	EnvERPClientSecret       = "ATELIE_ERP_CLIENT_SECRET"
	EnvERPSituationMap       = "ATELIE_ERP_SITUATION_MAP"
	EnvERPFiscalSituationMap = "ATELIE_ERP_FISCAL_SITUATION_MAP"
	EnvShopLegalName         = "ATELIE_SHOP_LEGAL_NAME"
	EnvShopCNPJ              = "ATELIE_SHOP_CNPJ"
	EnvShopOriginCEP         = "ATELIE_SHOP_ORIGIN_CEP"
	EnvAdminEmails           = "ATELIE_ADMIN_EMAILS"
	EnvAdminJWTSecret        = "ATELIE_ADMIN_JWT_SECRET"
	EnvCheckoutCardTTL       = "ATELIE_CHECKOUT_CARD_TTL"
	EnvCheckoutPixDiscount   = "ATELIE_CHECKOUT_PIX_DISCOUNT_PERCENT"
	EnvShippingLabelTrigger  = "ATELIE_SHIPPING_LABEL_TRIGGER"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// ParseSituationMap parses "id:value" pairs. An empty value is kept as "".
func ParseSituationMap(raw string) (map[int64]string, error) {
	out := map[int64]string{}
	for _, pair := range splitCSV(raw) {
		idPart, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q must be id:value", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid situation id", pair)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("situation %d listed twice", id)
		}
		out[id] = strings.ToLower(strings.TrimSpace(value))
	}
	return out, nil
}
