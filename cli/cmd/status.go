package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline configuration and backup inventory",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration")
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("  Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Println("  Config file: none found")
	}
	fmt.Printf("  Store path:  %s\n", viper.GetString("backup.store_path"))
	fmt.Printf("  Backup dir:  %s\n", viper.GetString("backup.dir"))
	fmt.Printf("  Retention:   keep %d\n", viper.GetInt("backup.keep"))
	fmt.Printf("  Audit:       enabled=%v type=%s\n",
		viper.GetBool("audit.enabled"), viper.GetString("audit.type"))
	if viper.GetString("replica.bucket") != "" {
		fmt.Printf("  Replica:     s3://%s/%s\n",
			viper.GetString("replica.bucket"), viper.GetString("replica.prefix"))
	} else {
		fmt.Println("  Replica:     not configured")
	}

	if changed := changedFlags(cmd); len(changed) > 0 {
		fmt.Println("\nFlag overrides")
		for _, line := range changed {
			fmt.Printf("  %s\n", line)
		}
	}

	infos, err := pipeline.List()
	if err != nil {
		return err
	}

	var total int64
	for _, info := range infos {
		total += info.Size
	}
	fmt.Printf("\nBackups: %d (%d bytes)\n", len(infos), total)
	if len(infos) > 0 {
		fmt.Printf("Newest:  %s (%s)\n", infos[0].Name, formatTime(infos[0].CreatedAt()))
	}
	return nil
}

// changedFlags lists explicitly set flags, masking values of sensitive ones.
func changedFlags(cmd *cobra.Command) []string {
	var out []string
	cmd.Root().PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			return
		}
		value := flag.Value.String()
		if isSensitiveFlag(flag.Name) {
			value = "***"
		}
		out = append(out, fmt.Sprintf("--%s=%s", flag.Name, value))
	})
	return out
}

func isSensitiveFlag(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range []string{"secret", "key", "password", "token"} {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
