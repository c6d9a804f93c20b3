package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warrenflow/pkg/authgate"
	"github.com/cuemby/warrenflow/pkg/types"
)

var keysFilePath string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys (config/api_keys.json)",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new API key scoped to one or more projects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, _ := cmd.Flags().GetStringSlice("project")
		expiryDays, _ := cmd.Flags().GetInt("expiry-days")

		key, err := authgate.CreateKey(keysFilePath, args[0], projects, expiryDays)
		if err != nil {
			return fmt.Errorf("create key: %w", err)
		}

		fmt.Printf("Created API key %q\n", key.Name)
		fmt.Printf("  key_id:  %s\n", key.KeyID)
		fmt.Printf("  secret:  %s\n", key.Secret)
		if len(key.AllowedProjects) == 0 {
			fmt.Println("  scope:   none (--project is required for this key to authorize anything)")
		} else {
			fmt.Printf("  scope:   %v\n", key.AllowedProjects)
		}
		if key.Expiry != nil {
			fmt.Printf("  expires: %s\n", key.Expiry.Format("2006-01-02"))
		}
		fmt.Println()
		fmt.Println("Store the secret now; it will not be shown again in plaintext.")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := loadKeysFile(keysFilePath)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No API keys found.")
			return nil
		}
		for _, k := range keys {
			scope := "none"
			if len(k.AllowedProjects) > 0 {
				scope = fmt.Sprintf("%v", k.AllowedProjects)
			}
			fmt.Printf("%s  %-20s  %s  %s\n", k.KeyID, k.Name, authgate.MaskKey(k.Secret), scope)
		}
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke an API key by key_id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := loadKeysFile(keysFilePath)
		if err != nil {
			return err
		}
		if _, ok := keys[args[0]]; !ok {
			return fmt.Errorf("no key with key_id %q", args[0])
		}
		delete(keys, args[0])
		if err := writeKeysFile(keysFilePath, keys); err != nil {
			return err
		}
		fmt.Printf("✓ Revoked key %s\n", args[0])
		fmt.Println("Send SIGHUP to a running warrenflow process to pick up this change immediately.")
		return nil
	},
}

func init() {
	keysCmd.PersistentFlags().StringVar(&keysFilePath, "file", "./config/api_keys.json", "Path to the API keys file")

	keysCreateCmd.Flags().StringSlice("project", nil, "Project this key is authorized for (repeatable; a key with no project authorizes none)")
	keysCreateCmd.Flags().Int("expiry-days", 0, "Days until this key expires (0 = never)")

	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}

func loadKeysFile(path string) (map[string]*types.ApiKey, error) {
	keys := map[string]*types.ApiKey{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("read api keys file: %w", err)
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse api keys file: %w", err)
	}
	return keys, nil
}

func writeKeysFile(path string, keys map[string]*types.ApiKey) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
