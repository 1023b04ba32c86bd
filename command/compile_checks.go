package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginInstallMessage]    = (*BeginInstallCommand)(nil)
	_ gocmd.Commander[CompleteInstallMessage] = (*CompleteInstallCommand)(nil)
)
