package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file template",
	Long:  "Write a commented YAML configuration template to $HOME/.vento.yaml (or the path given with --config).",
	RunE:  initConfigFile,
}

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
}

type configTemplate struct {
	Backup struct {
		StorePath   string `yaml:"store_path"`
		Dir         string `yaml:"dir"`
		KeyDir      string `yaml:"key_dir"`
		Keep        int    `yaml:"keep"`
		LockTimeout string `yaml:"lock_timeout"`
	} `yaml:"backup"`
	Audit struct {
		Enabled bool   `yaml:"enabled"`
		Type    string `yaml:"type"`
		Options struct {
			FilePath string `yaml:"file_path"`
		} `yaml:"options"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"audit"`
	Replica struct {
		Endpoint        string `yaml:"endpoint"`
		Region          string `yaml:"region"`
		Bucket          string `yaml:"bucket"`
		Prefix          string `yaml:"prefix"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		UseSSL          bool   `yaml:"use_ssl"`
	} `yaml:"replica"`
}

func initConfigFile(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".vento.yaml")
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}

	var tpl configTemplate
	tpl.Backup.StorePath = "vento.db"
	tpl.Backup.Dir = "backups"
	tpl.Backup.Keep = 5
	tpl.Backup.LockTimeout = "30s"
	tpl.Audit.Type = "file"
	tpl.Audit.Options.FilePath = "backups/audit.log"
	tpl.Audit.LogLevel = "info"
	tpl.Replica.Region = "us-east-1"
	tpl.Replica.Prefix = "vento/"
	tpl.Replica.UseSSL = true

	data, err := yaml.Marshal(&tpl)
	if err != nil {
		return fmt.Errorf("failed to render config template: %w", err)
	}

	if err = os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration template written to %s\n", path)
	return nil
}
