package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	AppName    string `json:"app_name"`
	ListenIP   string `json:"listen_ip"`
	ListenPort int    `json:"listen_port"`
	SessionKey string `json:"session_key"`
	DBPath     string `json:"db_path"`
}

func Load(path string) (Config, error) {
	var cfg Config

	file, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, err
	}

	// Override with environment variable if present
	if envKey := os.Getenv("NOTEX_SESSION_KEY"); envKey != "" {
		cfg.SessionKey = envKey
	}
	if envPath := os.Getenv("NOTEX_DB_PATH"); envPath != "" {
		cfg.DBPath = envPath
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "./notex.db"
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if cfg.SessionKey == "" || cfg.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		log.Println("WARNING: No session key configured. Generating a random key. Sessions will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return cfg, err
		}
		cfg.SessionKey = hex.EncodeToString(randomKey)
	}

	return cfg, nil
}
