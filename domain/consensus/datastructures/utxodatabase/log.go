package utxodatabase

import (
	"github.com/prism-dag/prismd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("UTXO")
