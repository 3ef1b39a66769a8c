package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Node captures the settings of a local zkVaccination node.
type Node struct {
	Addr string
	// KeyDir holds <method>_pk.bin, <method>_vk.bin and the exported verifiers.
	KeyDir string
	// LevelDBPath selects the LevelDB state store; empty keeps state in memory.
	LevelDBPath string
	IssuerSeed  string
	// AccountSeed derives the zkApp account key; empty draws a random one.
	AccountSeed string
	LogLevel    string
	// Prove attaches Groth16 proofs to transactions. Without it the node relies on
	// account signatures.
	Prove bool
	// BlockInterval bounds how long the ledger keeps a block timestamp open; zero keeps
	// the ledger default.
	BlockInterval time.Duration
}

const (
	DefaultAddr       = ":8080"
	DefaultKeyDir     = "build"
	DefaultIssuerSeed = "zkvaccination-dev-issuer"
)

// LoadDotEnv reads variables from the given files (".env" when none), keeping values
// already present in the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// FromEnv builds the node config from ZKV_* environment variables.
func FromEnv() Node {
	cfg := Node{
		Addr:        getenv("ZKV_ADDR", DefaultAddr),
		KeyDir:      getenv("ZKV_KEY_DIR", DefaultKeyDir),
		LevelDBPath: os.Getenv("ZKV_LEVELDB_PATH"),
		IssuerSeed:  getenv("ZKV_ISSUER_SEED", DefaultIssuerSeed),
		AccountSeed: os.Getenv("ZKV_ACCOUNT_SEED"),
		LogLevel:    getenv("ZKV_LOG_LEVEL", "info"),
	}
	if v, err := strconv.ParseBool(os.Getenv("ZKV_PROVE")); err == nil {
		cfg.Prove = v
	}
	if v, err := time.ParseDuration(os.Getenv("ZKV_BLOCK_INTERVAL")); err == nil {
		cfg.BlockInterval = v
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
