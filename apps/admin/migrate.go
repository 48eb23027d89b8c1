package main

import (
	"github.com/trezcool/shule/storage/database"
)

var gooseRunFunc = database.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, cli.engine, args[0], args[1:]...)
}
