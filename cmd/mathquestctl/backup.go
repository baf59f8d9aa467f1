package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mathquest/internal/service"
)

var (
	exportOutput string
	importClear  bool
	importYes    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every record to a JSON backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputPath := exportOutput
		if outputPath == "" {
			outputPath = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
		}
		if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		backupService := service.NewBackupService(db, log)
		if err := backupService.ExportToFile(cmd.Context(), outputPath); err != nil {
			return err
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			return err
		}
		fmt.Printf("Exported to %s (%.2f MB)\n", outputPath, float64(info.Size())/1024/1024)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore records from a JSON backup",
	Long: `Restore records from a JSON backup written by export. Ids are preserved.
Without --clear the import fails if any record already exists; with --clear
every table is emptied first, in the same transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := args[0]
		if _, err := os.Stat(inputPath); err != nil {
			return fmt.Errorf("input file: %w", err)
		}

		if importClear && !importYes {
			fmt.Print("WARNING: This will delete all existing data. Type 'yes' to confirm: ")
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Import cancelled")
				return nil
			}
		}

		backupService := service.NewBackupService(db, log)
		if err := backupService.ImportFromFile(cmd.Context(), inputPath, importClear); err != nil {
			return err
		}
		fmt.Println("Import complete")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "Clear existing data before import (destructive)")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Skip the confirmation prompt for --clear")
}
