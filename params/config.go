package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	Addr           string
	AllowedOrigins []string
	// AdminKey guards the admin endpoints; clients send it as X-Admin-Key.
	AdminKey string
}

type Game struct {
	StartingCash int64 // cents
	DepthLevels  int   // max book levels per side in snapshots; 0 = all
}

type Storage struct {
	DataDir      string
	TradeJournal bool // append executed trades to a pebble journal
}

type Config struct {
	API     API
	Game    Game
	Storage Storage
	LogFile string // empty = console only
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			AdminKey:       "letmein",
		},
		Game: Game{
			StartingCash: 10_000_00, // $10,000.00
			DepthLevels:  10,
		},
		Storage: Storage{
			DataDir:      "./data",
			TradeJournal: true,
		},
		LogFile: "",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}
	if key := os.Getenv("ADMIN_KEY"); key != "" {
		cfg.API.AdminKey = key
	}

	// Starting cash in cents, e.g. 1000000 = $10,000.00
	if cash := os.Getenv("STARTING_CASH_CENTS"); cash != "" {
		if v, err := strconv.ParseInt(cash, 10, 64); err == nil && v > 0 {
			cfg.Game.StartingCash = v
		}
	}
	if depth := os.Getenv("DEPTH_LEVELS"); depth != "" {
		if v, err := strconv.Atoi(depth); err == nil && v >= 0 {
			cfg.Game.DepthLevels = v
		}
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if journal := os.Getenv("TRADE_JOURNAL"); journal != "" {
		cfg.Storage.TradeJournal = journal == "true"
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	return cfg
}
