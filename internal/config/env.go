package config

import "github.com/joho/godotenv"

// LoadEnv loads .env (or the given files) into the process environment
// without overriding variables that are already set. A missing file is
// reported with an error satisfying os.IsNotExist.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}
