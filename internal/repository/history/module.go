package history

import "go.uber.org/fx"

// Module provides the history ledger to Fx.
var Module = fx.Provide(NewRepository)
