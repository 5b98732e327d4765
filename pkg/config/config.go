package config

import "os"

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	RefDataPath string

	// PolicyRulesPath points to an optional YAML file of staff-authored
	// advisory rules. A missing file disables the policy advisor.
	PolicyRulesPath string

	// Document collaborator (OpenAI-compatible chat completions).
	DocAIURL   string
	DocAIKey   string
	DocAIModel string

	// Proof-anchoring ledgers. A ledger without a signing key runs in
	// dry-run mode.
	LedgerAlphaEndpoint string
	LedgerAlphaAccount  string
	LedgerAlphaKey      string
	LedgerBetaEndpoint  string
	LedgerBetaAccount   string
	LedgerBetaKey       string

	JWTSecret    string
	OTLPEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:        getenv("PORT", "8080"),
		LogLevel:    getenv("LOG_LEVEL", "INFO"),
		DatabaseURL: getenv("DATABASE_URL", "tradegate.db"),
		RefDataPath: getenv("REFDATA_PATH", "refdata.yaml"),

		PolicyRulesPath: getenv("POLICY_RULES_PATH", "policy.yaml"),

		DocAIURL:   getenv("DOCAI_URL", "http://localhost:1234/v1/chat/completions"),
		DocAIKey:   os.Getenv("DOCAI_API_KEY"),
		DocAIModel: getenv("DOCAI_MODEL", "gpt-4o-mini"),

		LedgerAlphaEndpoint: os.Getenv("LEDGER_ALPHA_ENDPOINT"),
		LedgerAlphaAccount:  os.Getenv("LEDGER_ALPHA_ACCOUNT"),
		LedgerAlphaKey:      os.Getenv("LEDGER_ALPHA_SIGNING_KEY"),
		LedgerBetaEndpoint:  os.Getenv("LEDGER_BETA_ENDPOINT"),
		LedgerBetaAccount:   os.Getenv("LEDGER_BETA_ACCOUNT"),
		LedgerBetaKey:       os.Getenv("LEDGER_BETA_SIGNING_KEY"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
