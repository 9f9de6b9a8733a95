package history

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/blurry-core/core/history"

var logger = otelslog.NewLogger(scopeName)
