package ops

import "github.com/hashicorp/go-hclog"

// common is embedded by every operation struct. The zero value logs
// through the hclog default; compound operations hand their logger
// down to the sub-operations they drive.
type common struct {
	logger hclog.Logger
}

func (c *common) L() hclog.Logger {
	if c.logger != nil {
		return c.logger
	}

	c.logger = hclog.L()

	return c.logger
}

func (c *common) SetLogger(logger hclog.Logger) {
	c.logger = logger
}
