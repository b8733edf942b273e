package consensus

import (
	"github.com/prism-dag/prismd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNSS")
