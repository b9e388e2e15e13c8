// Package config loads and validates the Keyfold Core configuration.
//
// Configuration layers, later wins:
//
//  1. Hardcoded defaults
//  2. The YAML file (configs/config.yaml by default)
//  3. KEYFOLD_* environment variables
//
// Validation runs after all three, so a file can be partial as long as
// the merged result is complete. Secrets (the JWT signing secret,
// vendor API keys) belong in environment variables, not in the file;
// Load refuses a missing or weak JWT secret outright.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
