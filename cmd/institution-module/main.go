// Точка входа Institution Module — сервис учебных заведений платформы GoSchool.
// Подкоманды: serve (HTTP-сервер), migrate (миграции БД), version.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "institution-module",
	Short: "Учебные заведения, зал ожидания и списки участников",
	Long: `Institution Module управляет учебными заведениями платформы:
создание и удаление, заявки на вступление, списки учителей и студентов.
Конфигурация задаётся переменными окружения IM_*.`,
	SilenceUsage: true,
	// Без подкоманды запускается сервер.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
