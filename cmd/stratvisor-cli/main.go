// stratvisor CLI — инструмент командной строки для просмотра
// воркеров, supervisor и broker через API хоста.
//
// Использование:
//
//	stratvisor [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workers     Воркеры и их здоровье
//	supervisor  Статистика supervisor
//	broker      Статистика, топики и подписчики broker
package main

import (
	"os"

	"github.com/shaiso/stratvisor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version, os.Stdout, os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		cli.NewOutput(false).Error(err.Error())
		os.Exit(1)
	}
}
