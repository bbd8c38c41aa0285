// Package autoload configures the global logger from the environment as a
// side effect of being imported:
//
//	import _ "github.com/wwexlabs/freightdesk/pkg/logger/autoload"
package autoload

import (
	configx "github.com/wwexlabs/freightdesk/pkg/config"
	logx "github.com/wwexlabs/freightdesk/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
