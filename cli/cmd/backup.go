package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore, and manage encrypted backups",
	Long:  "Create encrypted backups of the inventory store, restore them, and manage retention.",
}

var createBackupCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a backup",
	Long: `Create an encrypted backup of the live inventory store.
When no name is given a timestamped one is generated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: createBackup,
}

var listBackupCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	RunE:  listBackups,
}

var restoreBackupCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Restore from a backup",
	Long: `Replace the live inventory store with the contents of the named backup.
The backup is decrypted and verified before the live store is touched, and the
current store is preserved as an automatic safety snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: restoreBackup,
}

var deleteBackupCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteBackup,
}

var cleanupBackupCmd = &cobra.Command{
	Use:   "cleanup [keep]",
	Short: "Delete old backups beyond the retention count",
	Long: `Delete every backup older than the keep newest ones.
When keep is omitted the configured default applies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: cleanupBackups,
}

var infoBackupCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show details of a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  backupInfo,
}

var replicateBackupCmd = &cobra.Command{
	Use:   "replicate [name]",
	Short: "Push a backup to the configured replica store",
	Long: `Upload the named backup's encrypted artifact and metadata to the configured
S3-compatible replica store. The artifact stays encrypted end to end.`,
	Args: cobra.ExactArgs(1),
	RunE: replicateBackup,
}

var skipConfirm bool

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.AddCommand(createBackupCmd)
	backupCmd.AddCommand(listBackupCmd)
	backupCmd.AddCommand(restoreBackupCmd)
	backupCmd.AddCommand(deleteBackupCmd)
	backupCmd.AddCommand(cleanupBackupCmd)
	backupCmd.AddCommand(infoBackupCmd)
	backupCmd.AddCommand(replicateBackupCmd)

	restoreBackupCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip the confirmation prompt")
}

func createBackup(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	result, err := pipeline.Create(name)
	if err != nil {
		return err
	}

	fmt.Printf("Backup created: %s\n", result.Name)
	fmt.Printf("  Size:     %d bytes\n", result.Size)
	fmt.Printf("  Checksum: %s\n", result.Checksum)
	fmt.Printf("  Created:  %s\n", formatTime(result.CreatedAt))
	return nil
}

func listBackups(cmd *cobra.Command, args []string) error {
	infos, err := pipeline.List()
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	fmt.Printf("%-40s %12s  %-19s  %s\n", "NAME", "SIZE", "CREATED", "CHECKSUM")
	for _, info := range infos {
		checksum := info.Checksum()
		if checksum == "" {
			checksum = "unknown"
		} else if len(checksum) > 12 {
			checksum = checksum[:12] + "..."
		}
		fmt.Printf("%-40s %12d  %-19s  %s\n",
			info.Name, info.Size, formatTime(info.CreatedAt()), checksum)
	}
	return nil
}

func restoreBackup(cmd *cobra.Command, args []string) error {
	name := args[0]

	if !skipConfirm {
		fmt.Printf("WARNING: This will overwrite the current inventory store with backup %s.\n", name)
		fmt.Print("Continue? (yes/no): ")

		var response string
		fmt.Scanln(&response)

		if response != "yes" {
			fmt.Println("Restore cancelled")
			return nil
		}
	}

	result, err := pipeline.Restore(name)
	if err != nil {
		return err
	}

	fmt.Printf("Backup %s restored successfully\n", result.Name)
	if result.SafetySnapshot != "" {
		fmt.Printf("Previous store preserved as safety snapshot: %s\n", result.SafetySnapshot)
	}
	return nil
}

func deleteBackup(cmd *cobra.Command, args []string) error {
	removed, err := pipeline.Delete(args[0])
	if err != nil {
		return err
	}

	if removed {
		fmt.Printf("Backup %s deleted\n", args[0])
	} else {
		fmt.Printf("Backup %s did not exist\n", args[0])
	}
	return nil
}

func cleanupBackups(cmd *cobra.Command, args []string) error {
	var deleted []string
	var err error

	if len(args) > 0 {
		keep, parseErr := strconv.Atoi(args[0])
		if parseErr != nil {
			return fmt.Errorf("invalid keep count %q: %w", args[0], parseErr)
		}
		deleted, err = pipeline.CleanupOldBackups(keep)
	} else {
		deleted, err = pipeline.Cleanup()
	}
	if err != nil {
		return err
	}

	if len(deleted) == 0 {
		fmt.Println("Nothing to delete, retention already satisfied")
		return nil
	}

	fmt.Printf("Deleted %d old backups:\n", len(deleted))
	for _, name := range deleted {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func backupInfo(cmd *cobra.Command, args []string) error {
	info, err := pipeline.Info(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Name:     %s\n", info.Name)
	fmt.Printf("Path:     %s\n", info.Path)
	fmt.Printf("Size:     %d bytes\n", info.Size)
	fmt.Printf("Created:  %s\n", formatTime(info.CreatedAt()))
	if info.Metadata != nil {
		fmt.Printf("Checksum: %s\n", info.Metadata.Checksum)
		fmt.Printf("Version:  %s\n", info.Metadata.Version)
	} else {
		fmt.Println("Metadata: missing (size and timestamp derived from the filesystem)")
	}
	return nil
}

func replicateBackup(cmd *cobra.Command, args []string) error {
	if err := pipeline.Replicate(args[0]); err != nil {
		return err
	}
	fmt.Printf("Backup %s replicated\n", args[0])
	return nil
}
