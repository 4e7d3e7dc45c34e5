package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mowgliph/vento"
	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/persist"
)

var (
	cfgFile  string
	pipeline *vento.Pipeline
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vento",
	Short: "Encrypted backup and restore for the inventory store",
	Long: `Manage encrypted backups of the local inventory store.
Backups are compressed, encrypted with ChaCha20-Poly1305 under a key derived
from per-installation key material, and verified structurally before any
restore touches the live store.`,
	PersistentPreRunE: initializePipeline,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pipeline != nil {
			return pipeline.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if pipeline != nil {
			report := pipeline.Reporter().Report(err)
			fmt.Fprintln(os.Stderr, report.UserMessage)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vento.yaml)")
	rootCmd.PersistentFlags().StringP("store", "s", "", "path to the live inventory store file")
	rootCmd.PersistentFlags().String("backup-dir", "", "directory holding encrypted backups")
	rootCmd.PersistentFlags().String("key-dir", "", "directory holding key material (default is $HOME/.vento)")
	rootCmd.PersistentFlags().Int("keep", vento.DefaultKeepCount, "default retention count for cleanup")
	rootCmd.PersistentFlags().Duration("lock-timeout", vento.DefaultLockTimeout, "how long to wait for a concurrent backup operation")

	bindFlagOrPanic("backup.store_path", "store")
	bindFlagOrPanic("backup.dir", "backup-dir")
	bindFlagOrPanic("backup.key_dir", "key-dir")
	bindFlagOrPanic("backup.keep", "keep")
	bindFlagOrPanic("backup.lock_timeout", "lock-timeout")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// Replica (S3) flags
	rootCmd.PersistentFlags().String("s3-endpoint", "", "replica S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "replica S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "replica S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "replica S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "replica S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "replica S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for replica S3 connections")

	bindFlagOrPanic("replica.endpoint", "s3-endpoint")
	bindFlagOrPanic("replica.region", "s3-region")
	bindFlagOrPanic("replica.bucket", "s3-bucket")
	bindFlagOrPanic("replica.prefix", "s3-prefix")
	bindFlagOrPanic("replica.access_key_id", "s3-access-key")
	bindFlagOrPanic("replica.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("replica.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vento")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".vento")
	}

	viper.SetEnvPrefix("VENTO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found is OK - defaults and env vars still apply
	}
}

func setDefaults() {
	viper.SetDefault("backup.store_path", "vento.db")
	viper.SetDefault("backup.keep", vento.DefaultKeepCount)
	viper.SetDefault("backup.lock_timeout", vento.DefaultLockTimeout)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", "file")
	viper.SetDefault("audit.log_level", "info")

	viper.SetDefault("replica.region", "us-east-1")
	viper.SetDefault("replica.prefix", "vento/")
	viper.SetDefault("replica.use_ssl", true)
}

func initializePipeline(cmd *cobra.Command, args []string) error {
	// Help-like commands and config init run without a pipeline
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "init" {
		return nil
	}

	options := vento.Options{
		StorePath:   viper.GetString("backup.store_path"),
		BackupDir:   viper.GetString("backup.dir"),
		KeyDir:      viper.GetString("backup.key_dir"),
		KeepCount:   viper.GetInt("backup.keep"),
		LockTimeout: viper.GetDuration("backup.lock_timeout"),
		Audit:       auditConfig(),
		Replica:     replicaConfig(),
	}

	p, err := vento.New(options)
	if err != nil {
		return fmt.Errorf("failed to initialize backup pipeline: %w", err)
	}
	pipeline = p
	return nil
}

func auditConfig() *audit.Config {
	if !viper.GetBool("audit.enabled") {
		return nil
	}
	return &audit.Config{
		Enabled: true,
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]interface{}{
			"file_path": viper.GetString("audit.options.file_path"),
		},
		LogLevel: viper.GetString("audit.log_level"),
	}
}

func replicaConfig() *persist.S3Config {
	if viper.GetString("replica.bucket") == "" {
		return nil
	}
	return &persist.S3Config{
		Endpoint:        viper.GetString("replica.endpoint"),
		AccessKeyID:     viper.GetString("replica.access_key_id"),
		SecretAccessKey: viper.GetString("replica.secret_access_key"),
		UseSSL:          viper.GetBool("replica.use_ssl"),
		Region:          viper.GetString("replica.region"),
		Bucket:          viper.GetString("replica.bucket"),
		KeyPrefix:       viper.GetString("replica.prefix"),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
