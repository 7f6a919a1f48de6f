package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goschool/institution-module/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Версия сервиса",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("institution-module version %s\n", config.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
