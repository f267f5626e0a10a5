package middleware

import (
	"testing"

	"github.com/karloscodes/kour"
	"github.com/karloscodes/kour/testsupport"
)

func newApp(t *testing.T, mw ...kour.Middleware) *kour.App {
	t.Helper()
	app := kour.New(kour.WithLogger(testsupport.NewTestLogger()))
	app.Use(mw...)
	return app
}
