package main // Entry point package

import (
	"errors"
	"io/fs"
	"log" // Logging library

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "reservation-engine",
	Short:        "Reservation orchestration and payment settlement API",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real environments set variables directly
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("could not read .env: %v", err)
		}
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err) // Log and exit if a command fails
	}
}
