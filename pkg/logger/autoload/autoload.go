// Package autoload configures the global zerolog logger from LOG_*
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/tanpawarit/smartops-bi/pkg/config"
	logx "github.com/tanpawarit/smartops-bi/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
