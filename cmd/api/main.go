package main

import (
	"go.uber.org/fx"

	"github.com/ordesk/ordesk/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
